package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

type postmarkClient struct {
	client *postmark.Client
	cfg    Config
}

// NewPostmarkClient sends through Postmark's transactional API.
func NewPostmarkClient(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if !ValidAddress(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	return &postmarkClient{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		cfg:    cfg,
	}, nil
}

func (c *postmarkClient) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	headers := make([]postmark.Header, 0, len(msg.Headers))
	for name, value := range msg.Headers {
		headers = append(headers, postmark.Header{Name: name, Value: value})
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:          c.cfg.from(),
		ReplyTo:       c.cfg.ReplyTo,
		To:            msg.To,
		Subject:       msg.Subject,
		Tag:           msg.Tag,
		HTMLBody:      msg.HTML,
		TextBody:      msg.Text,
		Headers:       headers,
		Metadata:      msg.Metadata,
		MessageStream: c.cfg.PostmarkStream,
		TrackOpens:    true,
	})
	if err != nil {
		return "", errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return "", errors.Join(ErrFailedToSendEmail, fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message))
	}
	return resp.MessageID, nil
}
