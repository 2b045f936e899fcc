// Package email sends rendered messages through a pluggable provider.
//
// Sender is implemented by Postmark (github.com/mrz1836/postmark), Resend
// (github.com/resend/resend-go/v2) and a DevSender that writes messages to
// disk. New picks one from Config.Provider:
//
//	sender, err := email.New(cfg.Email)
//	id, err := sender.Send(ctx, email.Message{To: addr, Subject: s, HTML: body})
//
// The returned id is the provider's message id. Messages are validated
// before any provider call. Subpackage templates renders templ components.
package email
