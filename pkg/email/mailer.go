package email

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Sender delivers one message and returns the provider's message id, which
// later correlates bounce and delivery webhooks.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Message is a rendered email ready for a provider.
type Message struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	HTML     string            `json:"html"`
	Text     string            `json:"text,omitempty"`
	Tag      string            `json:"tag,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidAddress is a cheap syntactic check used before calling a provider.
func ValidAddress(addr string) bool {
	return emailRegex.MatchString(addr)
}

// Validate reports the first missing or malformed field.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.To) == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	case !ValidAddress(m.To):
		return fmt.Errorf("%w: recipient %q is not a valid email address", ErrInvalidMessage, m.To)
	case strings.TrimSpace(m.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	case strings.TrimSpace(m.HTML) == "" && strings.TrimSpace(m.Text) == "":
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}
