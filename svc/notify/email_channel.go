package notify

import (
	"context"

	"github.com/dmitrymomot/courier/pkg/email"
)

// EmailProvider adapts an email.Sender to Provider.
type EmailProvider struct {
	sender email.Sender
}

// NewEmailProvider wraps sender.
func NewEmailProvider(sender email.Sender) *EmailProvider {
	return &EmailProvider{sender: sender}
}

func (p *EmailProvider) Send(ctx context.Context, msg Message) (string, error) {
	return p.sender.Send(ctx, email.Message{
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.Body,
		Text:     msg.Text,
		Tag:      msg.Tag,
		Headers:  msg.Headers,
		Metadata: msg.Metadata,
	})
}

// NewEmailChannel builds the "email" channel. Sender identity lives in the
// provider configuration; the channel adds one-click unsubscribe headers
// (RFC 8058) whenever an unsubscribe link was minted.
func NewEmailChannel(sender email.Sender, deps ChannelDeps, opts ...ChannelOption) *ProviderChannel {
	opts = append([]ChannelOption{WithMessageDecorator(listUnsubscribeHeaders)}, opts...)
	return NewChannel(ChannelEmail, NewEmailProvider(sender), deps, opts...)
}

func listUnsubscribeHeaders(msg *Message, req DeliveryRequest) {
	link := req.Links[ActionUnsubscribe]
	if link == "" {
		return
	}
	msg.Headers["List-Unsubscribe"] = "<" + link + ">"
	msg.Headers["List-Unsubscribe-Post"] = "List-Unsubscribe=One-Click"
}
