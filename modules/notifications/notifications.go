package notifications

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/binder"
	"github.com/dmitrymomot/courier/handler"
	"github.com/dmitrymomot/courier/svc/notify"
)

// NotificationService triggers and reads notifications.
type NotificationService interface {
	Send(ctx context.Context, req notify.SendRequest) (notify.SendResult, error)
	List(ctx context.Context, tenantID uuid.UUID, userID string, opts notify.ListOptions) ([]notify.Notification, error)
	Get(ctx context.Context, tenantID uuid.UUID, userID string, id uuid.UUID) (*notify.Notification, error)
}

// ReadMarker flags delivered notifications as read.
type ReadMarker interface {
	MarkRead(ctx context.Context, tenantID uuid.UUID, userID string, id uuid.UUID) (*notify.Notification, error)
}

// ActionPerformer runs authenticated actions.
type ActionPerformer interface {
	Perform(ctx context.Context, req notify.ActionRequest) (notify.ActionResult, error)
	PerformBatch(ctx context.Context, req notify.BatchActionRequest) (notify.BatchActionResult, error)
}

type NotificationsHandler struct {
	service      NotificationService
	reads        ReadMarker
	actions      ActionPerformer
	errorHandler handler.ErrorHandler[handler.Context]
}

func NewNotificationsHandler(
	service NotificationService,
	reads ReadMarker,
	actions ActionPerformer,
	errorHandler handler.ErrorHandler[handler.Context],
) *NotificationsHandler {
	return &NotificationsHandler{
		service:      service,
		reads:        reads,
		actions:      actions,
		errorHandler: errorHandler,
	}
}

func (h *NotificationsHandler) Mount(r chi.Router) {
	r.Post("/send", handler.Wrap(h.send,
		handler.WithBinders[handler.Context, SendRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, SendRequest](h.errorHandler),
	))
	r.Get("/notifications", handler.Wrap(h.list,
		handler.WithBinders[handler.Context, ListRequest](binder.Header(), binder.Query()),
		handler.WithErrorHandler[handler.Context, ListRequest](h.errorHandler),
	))
	r.Get("/notifications/{id}", handler.Wrap(h.get,
		handler.WithBinders[handler.Context, NotificationRequest](binder.Path(chi.URLParam), binder.Header()),
		handler.WithErrorHandler[handler.Context, NotificationRequest](h.errorHandler),
	))
	r.Post("/notifications/{id}/read", handler.Wrap(h.markRead,
		handler.WithBinders[handler.Context, NotificationRequest](binder.Path(chi.URLParam), binder.Header()),
		handler.WithErrorHandler[handler.Context, NotificationRequest](h.errorHandler),
	))
	r.Post("/notifications/{id}/action", handler.Wrap(h.perform,
		handler.WithBinders[handler.Context, ActionRequest](binder.Path(chi.URLParam), binder.Header(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, ActionRequest](h.errorHandler),
	))
}

// SendRequest triggers a notification type for the current tenant.
type SendRequest struct {
	TypeID     string         `json:"type_id"`
	Payload    map[string]any `json:"payload"`
	Recipients []string       `json:"recipients,omitempty"`
	EventID    string         `json:"event_id,omitempty"`
}

func (h *NotificationsHandler) send(ctx handler.Context, req SendRequest) handler.Response {
	tid, err := tenantID(ctx)
	if err != nil {
		return handler.Error(err)
	}
	res, err := h.service.Send(ctx, notify.SendRequest{
		TenantID:   tid,
		TypeID:     req.TypeID,
		Payload:    req.Payload,
		Recipients: req.Recipients,
		EventID:    req.EventID,
	})
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(res, handler.WithJSONStatus(http.StatusAccepted))
}

// ListRequest filters the caller's notifications.
type ListRequest struct {
	UserID     string          `header:"X-User-ID"`
	Limit      int             `query:"limit"`
	Offset     int             `query:"offset"`
	OnlyUnread bool            `query:"unread"`
	TypeID     string          `query:"type"`
	Statuses   []notify.Status `query:"status"`
	Since      *time.Time      `query:"since"`
}

func (h *NotificationsHandler) list(ctx handler.Context, req ListRequest) handler.Response {
	tid, uid, err := caller(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	opts := notify.ListOptions{
		Limit:      req.Limit,
		Offset:     req.Offset,
		OnlyUnread: req.OnlyUnread,
		TypeID:     req.TypeID,
		Statuses:   req.Statuses,
		Since:      req.Since,
	}
	ns, err := h.service.List(ctx, tid, uid, opts)
	if err != nil {
		return handler.Error(err)
	}
	if ns == nil {
		ns = []notify.Notification{}
	}
	return handler.JSON(ns, handler.WithJSONMeta(map[string]any{
		"offset": req.Offset,
		"count":  len(ns),
	}))
}

// NotificationRequest addresses one of the caller's notifications.
type NotificationRequest struct {
	ID     uuid.UUID `path:"id"`
	UserID string    `header:"X-User-ID"`
}

func (h *NotificationsHandler) get(ctx handler.Context, req NotificationRequest) handler.Response {
	tid, uid, err := caller(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	n, err := h.service.Get(ctx, tid, uid, req.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(n)
}

func (h *NotificationsHandler) markRead(ctx handler.Context, req NotificationRequest) handler.Response {
	tid, uid, err := caller(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	n, err := h.reads.MarkRead(ctx, tid, uid, req.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(n)
}

// ActionRequest performs an action from the application UI.
type ActionRequest struct {
	ID     uuid.UUID `path:"id" json:"-"`
	UserID string    `header:"X-User-ID" json:"-"`

	ActionType string         `json:"action_type"`
	Data       map[string]any `json:"data,omitempty"`
}

func (h *NotificationsHandler) perform(ctx handler.Context, req ActionRequest) handler.Response {
	tid, uid, err := caller(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	res, err := h.actions.Perform(ctx, notify.ActionRequest{
		TenantID:       tid,
		UserID:         uid,
		NotificationID: req.ID,
		ActionType:     req.ActionType,
		ActionData:     req.Data,
	})
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(res)
}
