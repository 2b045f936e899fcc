package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/courier/pkg/logger"
)

// DefaultSendTimeout bounds a single provider call.
const DefaultSendTimeout = 5 * time.Second

// Message is rendered content addressed to one recipient.
type Message struct {
	To       string
	Subject  string
	Body     string
	Text     string
	Tag      string
	Headers  map[string]string
	Metadata map[string]string
}

// Provider hands a message to a transport and returns its message id.
type Provider interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, msg Message) (string, error)

func (f ProviderFunc) Send(ctx context.Context, msg Message) (string, error) {
	return f(ctx, msg)
}

// Rendered is the output of a Renderer.
type Rendered struct {
	Subject string
	Body    string
	Text    string
}

// Renderer turns a template id and data into content.
type Renderer interface {
	Render(ctx context.Context, templateID string, data map[string]any) (Rendered, error)
}

// DeliveryRequest is everything a channel needs to send one notification.
type DeliveryRequest struct {
	User         *User
	Notification *Notification
	TemplateID   string
	Links        map[string]string
}

// DeliveryResult is the uniform outcome of Channel.Deliver.
type DeliveryResult struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Address           string `json:"address,omitempty"`
	Err               error  `json:"-"`
}

// Channel delivers a notification over one medium.
type Channel interface {
	ID() string
	Deliver(ctx context.Context, req DeliveryRequest) DeliveryResult
}

// MessageDecorator adjusts a message before it reaches the provider.
type MessageDecorator func(msg *Message, req DeliveryRequest)

// ChannelDeps are the collaborators every provider-backed channel uses.
type ChannelDeps struct {
	Resolver  UserResolver
	Addresses AddressStore
	Renderer  Renderer
}

// ProviderChannel resolves the address, checks suppression, renders and sends.
type ProviderChannel struct {
	id         string
	provider   Provider
	deps       ChannelDeps
	timeout    time.Duration
	limiter    *rate.Limiter
	decorators []MessageDecorator
	logger     *slog.Logger
}

// ChannelOption configures a ProviderChannel.
type ChannelOption func(*ProviderChannel)

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(d time.Duration) ChannelOption {
	return func(c *ProviderChannel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit throttles provider calls to r per second with burst.
func WithRateLimit(r float64, burst int) ChannelOption {
	return func(c *ProviderChannel) {
		if r > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(r), max(burst, 1))
		}
	}
}

// WithMessageDecorator appends a decorator.
func WithMessageDecorator(d MessageDecorator) ChannelOption {
	return func(c *ProviderChannel) {
		if d != nil {
			c.decorators = append(c.decorators, d)
		}
	}
}

// WithChannelLogger sets the logger.
func WithChannelLogger(l *slog.Logger) ChannelOption {
	return func(c *ProviderChannel) {
		c.logger = l
	}
}

// NewChannel builds a channel named id around provider.
func NewChannel(id string, provider Provider, deps ChannelDeps, opts ...ChannelOption) *ProviderChannel {
	c := &ProviderChannel{
		id:       id,
		provider: provider,
		deps:     deps,
		timeout:  DefaultSendTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ProviderChannel) ID() string { return c.id }

// Deliver never panics on collaborator failures; every problem ends up in
// DeliveryResult.Err.
func (c *ProviderChannel) Deliver(ctx context.Context, req DeliveryRequest) DeliveryResult {
	n := req.Notification

	addr, err := c.deps.Resolver.GetUserChannelAddress(ctx, n.TenantID, n.UserID, c.id)
	if err != nil {
		return DeliveryResult{Err: fmt.Errorf("resolve address: %w", err)}
	}
	if addr == "" {
		return DeliveryResult{Err: ErrNoAddress}
	}

	rec, err := c.deps.Addresses.GetAddress(ctx, n.TenantID, n.UserID, c.id, addr)
	switch {
	case err == nil && rec.IsDisabled:
		return DeliveryResult{Address: addr, Err: ErrAddressSuppressed}
	case err != nil && !errors.Is(err, ErrAddressNotFound):
		return DeliveryResult{Address: addr, Err: fmt.Errorf("load address: %w", err)}
	}

	rendered, err := c.deps.Renderer.Render(ctx, req.TemplateID, RenderData(req))
	if err != nil {
		return DeliveryResult{Address: addr, Err: errors.Join(ErrRender, err)}
	}

	msg := Message{
		To:       addr,
		Subject:  rendered.Subject,
		Body:     rendered.Body,
		Text:     rendered.Text,
		Tag:      n.TypeID,
		Headers:  map[string]string{},
		Metadata: map[string]string{"notification_id": n.ID.String(), "tenant_id": n.TenantID.String()},
	}
	for _, d := range c.decorators {
		d(&msg, req)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return DeliveryResult{Address: addr, Err: errors.Join(ErrProvider, err)}
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	messageID, err := c.provider.Send(sendCtx, msg)
	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "provider send failed",
			logger.Channel(c.id),
			logger.NotificationID(n.ID),
			logger.Duration(time.Since(start)),
			logger.Error(err),
		)
		return DeliveryResult{Address: addr, Err: errors.Join(ErrProvider, err)}
	}
	return DeliveryResult{Success: true, ProviderMessageID: messageID, Address: addr}
}

// Template keys set by RenderData. Payload fields with these names stay
// reachable under RenderKeyPayload only.
const (
	RenderKeyPayload        = "payload"
	RenderKeyNotificationID = "notification_id"
	RenderKeyTypeID         = "type_id"
	RenderKeyLinks          = "links"
	RenderKeyUser           = "user"
)

// RenderData is the template input: the payload under "payload", its
// non-reserved keys repeated at the top level, plus user, links and
// notification identifiers.
func RenderData(req DeliveryRequest) map[string]any {
	n := req.Notification
	data := make(map[string]any, len(n.Payload)+5)
	maps.Copy(data, n.Payload)
	data[RenderKeyPayload] = n.Payload
	data[RenderKeyNotificationID] = n.ID.String()
	data[RenderKeyTypeID] = n.TypeID
	data[RenderKeyLinks] = req.Links
	if req.User != nil {
		data[RenderKeyUser] = map[string]any{
			"id":    req.User.ID,
			"name":  req.User.Name,
			"email": req.User.Email,
		}
	} else {
		delete(data, RenderKeyUser)
	}
	return data
}
