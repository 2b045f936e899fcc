package notifications

import (
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/binder"
	"github.com/dmitrymomot/courier/handler"
	"github.com/dmitrymomot/courier/svc/notify"
)

type BatchesHandler struct {
	actions      ActionPerformer
	errorHandler handler.ErrorHandler[handler.Context]
}

func NewBatchesHandler(actions ActionPerformer, errorHandler handler.ErrorHandler[handler.Context]) *BatchesHandler {
	return &BatchesHandler{actions: actions, errorHandler: errorHandler}
}

func (h *BatchesHandler) Mount(r chi.Router) {
	r.Post("/batches/{id}/action", handler.Wrap(h.perform,
		handler.WithBinders[handler.Context, BatchActionRequest](binder.Path(chi.URLParam), binder.Header(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, BatchActionRequest](h.errorHandler),
	))
}

// BatchActionRequest applies one action to every notification in a digest.
type BatchActionRequest struct {
	ID     uuid.UUID `path:"id" json:"-"`
	UserID string    `header:"X-User-ID" json:"-"`

	ActionType string         `json:"action_type"`
	Data       map[string]any `json:"data,omitempty"`
}

func (h *BatchesHandler) perform(ctx handler.Context, req BatchActionRequest) handler.Response {
	tid, uid, err := caller(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	res, err := h.actions.PerformBatch(ctx, notify.BatchActionRequest{
		TenantID:   tid,
		UserID:     uid,
		BatchID:    req.ID,
		ActionType: req.ActionType,
		ActionData: req.Data,
	})
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(res)
}
