package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

type resendClient struct {
	client *resend.Client
	cfg    Config
}

// NewResendClient sends through the Resend API.
func NewResendClient(cfg Config) (Sender, error) {
	if cfg.ResendAPIKey == "" {
		return nil, fmt.Errorf("%w: ResendAPIKey is required", ErrInvalidConfig)
	}
	if !ValidAddress(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	return &resendClient{client: resend.NewClient(cfg.ResendAPIKey), cfg: cfg}, nil
}

func (c *resendClient) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	req := &resend.SendEmailRequest{
		From:    c.cfg.from(),
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: c.cfg.ReplyTo,
		Headers: msg.Headers,
	}
	if msg.Tag != "" {
		req.Tags = []resend.Tag{{Name: "category", Value: msg.Tag}}
	}

	sent, err := c.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", errors.Join(ErrFailedToSendEmail, err)
	}
	return sent.Id, nil
}
