package notifications

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/binder"
	"github.com/dmitrymomot/courier/handler"
	"github.com/dmitrymomot/courier/svc/notify"
)

// Deliverer sends one stored notification.
type Deliverer interface {
	Deliver(ctx context.Context, id uuid.UUID) (notify.DeliveryResult, error)
}

// BatchFlusher sends due digests.
type BatchFlusher interface {
	Flush(ctx context.Context, now time.Time) (notify.FlushResult, error)
	FlushBatch(ctx context.Context, id uuid.UUID) error
}

// OperationsHandler exposes the entry points an external invoker drives:
// delivery retries and digest flushes.
type OperationsHandler struct {
	delivery     Deliverer
	flusher      BatchFlusher
	errorHandler handler.ErrorHandler[handler.Context]
	now          func() time.Time
}

// OperationsOption configures an OperationsHandler.
type OperationsOption func(*OperationsHandler)

// WithOperationsClock overrides time.Now.
func WithOperationsClock(now func() time.Time) OperationsOption {
	return func(h *OperationsHandler) {
		h.now = now
	}
}

func NewOperationsHandler(delivery Deliverer, flusher BatchFlusher, errorHandler handler.ErrorHandler[handler.Context], opts ...OperationsOption) *OperationsHandler {
	h := &OperationsHandler{delivery: delivery, flusher: flusher, errorHandler: errorHandler, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *OperationsHandler) Mount(r chi.Router) {
	r.Post("/notifications/{id}/deliver", handler.Wrap(h.deliver,
		handler.WithBinders[handler.Context, DeliverRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, DeliverRequest](h.errorHandler),
	))
	r.Post("/batches/flush", handler.Wrap(h.flush,
		handler.WithBinders[handler.Context, FlushRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, FlushRequest](h.errorHandler),
	))
	r.Post("/batches/{id}/flush", handler.Wrap(h.flushBatch,
		handler.WithBinders[handler.Context, DeliverRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, DeliverRequest](h.errorHandler),
	))
}

// DeliverRequest addresses a notification or batch by id.
type DeliverRequest struct {
	ID uuid.UUID `path:"id"`
}

func (h *OperationsHandler) deliver(ctx handler.Context, req DeliverRequest) handler.Response {
	res, err := h.delivery.Deliver(ctx, req.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(res)
}

// FlushRequest optionally pins the flush clock with ?at=<RFC 3339>. Times
// after now are clamped to now, so no batch leaves before its window.
type FlushRequest struct {
	At time.Time `query:"at"`
}

func (h *OperationsHandler) flush(ctx handler.Context, req FlushRequest) handler.Response {
	at := h.now()
	if !req.At.IsZero() && req.At.Before(at) {
		at = req.At
	}
	res, err := h.flusher.Flush(ctx, at)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(res)
}

func (h *OperationsHandler) flushBatch(ctx handler.Context, req DeliverRequest) handler.Response {
	if err := h.flusher.FlushBatch(ctx, req.ID); err != nil {
		return handler.Error(err)
	}
	return handler.JSON(map[string]any{"batch_id": req.ID, "flushed": true})
}
