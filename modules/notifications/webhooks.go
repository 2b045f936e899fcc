package notifications

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/courier/binder"
	"github.com/dmitrymomot/courier/handler"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/webhook"
	"github.com/dmitrymomot/courier/svc/notify"
)

// Email provider record types.
const (
	RecordBounce        = "Bounce"
	RecordSpamComplaint = "SpamComplaint"
	RecordDelivery      = "Delivery"
)

// DefaultSignatureMaxAge bounds how old a signed webhook may be.
const DefaultSignatureMaxAge = 5 * time.Minute

const maxWebhookBody = 256 << 10

// FeedbackRecorder applies provider callbacks.
type FeedbackRecorder interface {
	RecordBounce(ctx context.Context, ev notify.FeedbackEvent) (notify.FeedbackResult, error)
	RecordComplaint(ctx context.Context, ev notify.FeedbackEvent) (notify.FeedbackResult, error)
	RecordDelivered(ctx context.Context, ev notify.FeedbackEvent) (notify.FeedbackResult, error)
}

// WebhooksHandler accepts signed bounce, complaint and delivery callbacks.
type WebhooksHandler struct {
	feedback     FeedbackRecorder
	secret       string
	maxAge       time.Duration
	now          func() time.Time
	logger       *slog.Logger
	errorHandler handler.ErrorHandler[handler.Context]
}

// WebhookOption configures a WebhooksHandler.
type WebhookOption func(*WebhooksHandler)

// WithSignatureMaxAge overrides DefaultSignatureMaxAge. Zero disables the check.
func WithSignatureMaxAge(d time.Duration) WebhookOption {
	return func(h *WebhooksHandler) {
		h.maxAge = d
	}
}

func WithWebhookClock(now func() time.Time) WebhookOption {
	return func(h *WebhooksHandler) {
		h.now = now
	}
}

func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(h *WebhooksHandler) {
		h.logger = l
	}
}

func NewWebhooksHandler(feedback FeedbackRecorder, secret string, errorHandler handler.ErrorHandler[handler.Context], opts ...WebhookOption) *WebhooksHandler {
	h := &WebhooksHandler{
		feedback:     feedback,
		secret:       secret,
		maxAge:       DefaultSignatureMaxAge,
		now:          time.Now,
		logger:       logger.Noop(),
		errorHandler: errorHandler,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *WebhooksHandler) Mount(r chi.Router) {
	r.Post("/webhooks/email", handler.Wrap(h.email,
		handler.WithErrorHandler[handler.Context, struct{}](h.errorHandler),
	))
}

// EmailEvent is the provider payload. Only the fields used for feedback are
// decoded; the rest is ignored.
type EmailEvent struct {
	RecordType  string    `json:"RecordType"`
	MessageID   string    `json:"MessageID"`
	Email       string    `json:"Email"`
	Recipient   string    `json:"Recipient"`
	BouncedAt   time.Time `json:"BouncedAt"`
	DeliveredAt time.Time `json:"DeliveredAt"`
}

// WebhookResult is the acknowledgement body.
type WebhookResult struct {
	RecordType      string `json:"record_type"`
	Ignored         bool   `json:"ignored,omitempty"`
	Notifications   int    `json:"notifications"`
	AddressDisabled bool   `json:"address_disabled,omitempty"`
}

func (h *WebhooksHandler) email(ctx handler.Context, _ struct{}) handler.Response {
	r := ctx.Request()
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.ResponseWriter(), r.Body, maxWebhookBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return handler.Error(binder.ErrBodyTooLarge)
		}
		return handler.Error(fmt.Errorf("%w: %v", binder.ErrInvalidJSON, err))
	}

	sig, err := webhook.FromHeaders(r.Header)
	if err != nil {
		return handler.Error(err)
	}
	if err := webhook.VerifySignature(h.secret, payload, sig, h.maxAge, h.now()); err != nil {
		return handler.Error(err)
	}

	var ev EmailEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return handler.Error(fmt.Errorf("%w: %v", binder.ErrInvalidJSON, err))
	}

	fe := notify.FeedbackEvent{MessageID: ev.MessageID, Address: cmp.Or(ev.Email, ev.Recipient)}
	var record func(context.Context, notify.FeedbackEvent) (notify.FeedbackResult, error)
	switch ev.RecordType {
	case RecordBounce:
		record, fe.At = h.feedback.RecordBounce, ev.BouncedAt
	case RecordSpamComplaint:
		record, fe.At = h.feedback.RecordComplaint, ev.BouncedAt
	case RecordDelivery:
		record, fe.At = h.feedback.RecordDelivered, ev.DeliveredAt
	default:
		return handler.JSON(WebhookResult{RecordType: ev.RecordType, Ignored: true})
	}

	res, err := record(ctx, fe)
	switch {
	case errors.Is(err, notify.ErrNotificationNotFound):
		// Unknown message ids are acknowledged, not rejected.
		h.logger.LogAttrs(ctx, slog.LevelInfo, "feedback for unknown message ignored",
			logger.MessageID(ev.MessageID),
			slog.String("record_type", ev.RecordType),
		)
		return handler.JSON(WebhookResult{RecordType: ev.RecordType, Ignored: true})
	case err != nil:
		return handler.Error(err)
	}

	out := WebhookResult{RecordType: ev.RecordType, Notifications: res.Notifications}
	if res.Address != nil {
		out.AddressDisabled = res.Address.IsDisabled
	}
	return handler.JSON(out)
}
