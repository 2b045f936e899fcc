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

// PreferenceService reads and changes per-type preferences.
type PreferenceService interface {
	Get(ctx context.Context, tenantID uuid.UUID, userID, typeID string) (*notify.Preference, error)
	List(ctx context.Context, tenantID uuid.UUID, userID string) ([]notify.Preference, error)
	Update(ctx context.Context, in notify.UpdateInput) (*notify.Preference, error)
	Subscribe(ctx context.Context, in notify.SubscribeInput) (*notify.Preference, error)
	Unsubscribe(ctx context.Context, tenantID uuid.UUID, userID, typeID string) (*notify.Preference, error)
}

type PreferencesHandler struct {
	prefs        PreferenceService
	errorHandler handler.ErrorHandler[handler.Context]
}

func NewPreferencesHandler(prefs PreferenceService, errorHandler handler.ErrorHandler[handler.Context]) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs, errorHandler: errorHandler}
}

func (h *PreferencesHandler) Mount(r chi.Router) {
	r.Get("/preferences", handler.Wrap(h.list,
		handler.WithBinders[handler.Context, PreferenceRequest](binder.Header()),
		handler.WithErrorHandler[handler.Context, PreferenceRequest](h.errorHandler),
	))
	r.Get("/preferences/{typeId}", handler.Wrap(h.get,
		handler.WithBinders[handler.Context, PreferenceRequest](binder.Path(chi.URLParam), binder.Header()),
		handler.WithErrorHandler[handler.Context, PreferenceRequest](h.errorHandler),
	))
	r.Put("/preferences/{typeId}", handler.Wrap(h.update,
		handler.WithBinders[handler.Context, UpdatePreferenceRequest](binder.Path(chi.URLParam), binder.Header(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, UpdatePreferenceRequest](h.errorHandler),
	))
	r.Post("/subscribe", handler.Wrap(h.subscribe,
		handler.WithBinders[handler.Context, SubscribeRequest](binder.Header(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, SubscribeRequest](h.errorHandler),
	))
	r.Post("/unsubscribe/{typeId}", handler.Wrap(h.unsubscribe,
		handler.WithBinders[handler.Context, PreferenceRequest](binder.Path(chi.URLParam), binder.Header()),
		handler.WithErrorHandler[handler.Context, PreferenceRequest](h.errorHandler),
	))
}

// PreferenceRequest addresses the caller's preference for one type, or all
// of them when TypeID is empty.
type PreferenceRequest struct {
	TypeID string `path:"typeId"`
	UserID string `header:"X-User-ID"`
}

func (h *PreferencesHandler) list(ctx handler.Context, req PreferenceRequest) handler.Response {
	tid, uid, err := caller(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	prefs, err := h.prefs.List(ctx, tid, uid)
	if err != nil {
		return handler.Error(err)
	}
	if prefs == nil {
		prefs = []notify.Preference{}
	}
	return handler.JSON(prefs)
}

func (h *PreferencesHandler) get(ctx handler.Context, req PreferenceRequest) handler.Response {
	tid, uid, err := caller(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	p, err := h.prefs.Get(ctx, tid, uid, req.TypeID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(p)
}

// UpdatePreferenceRequest changes only the fields present in the body.
// BatchInterval is a Go duration string such as "1h".
type UpdatePreferenceRequest struct {
	TypeID string `path:"typeId" json:"-"`
	UserID string `header:"X-User-ID" json:"-"`

	Enabled         *bool              `json:"enabled,omitempty"`
	Channels        []string           `json:"channels,omitempty"`
	Frequency       *notify.Frequency  `json:"frequency,omitempty"`
	BatchInterval   *string            `json:"batch_interval,omitempty"`
	QuietHours      *notify.QuietHours `json:"quiet_hours,omitempty"`
	ClearQuietHours bool               `json:"clear_quiet_hours,omitempty"`
	Timezone        *string            `json:"timezone,omitempty"`
}

func (h *PreferencesHandler) update(ctx handler.Context, req UpdatePreferenceRequest) handler.Response {
	tid, uid, err := caller(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	in := notify.UpdateInput{
		TenantID:        tid,
		UserID:          uid,
		TypeID:          req.TypeID,
		Enabled:         req.Enabled,
		Channels:        req.Channels,
		Frequency:       req.Frequency,
		QuietHours:      req.QuietHours,
		ClearQuietHours: req.ClearQuietHours,
		Timezone:        req.Timezone,
	}
	if req.BatchInterval != nil {
		d, err := parseInterval(*req.BatchInterval)
		if err != nil {
			return handler.Error(err)
		}
		in.BatchInterval = &d
	}
	p, err := h.prefs.Update(ctx, in)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(p)
}

// SubscribeRequest enables a type, optionally choosing routing.
type SubscribeRequest struct {
	UserID string `header:"X-User-ID" json:"-"`

	TypeID        string           `json:"type_id"`
	Channels      []string         `json:"channels,omitempty"`
	Frequency     notify.Frequency `json:"frequency,omitempty"`
	BatchInterval string           `json:"batch_interval,omitempty"`
}

func (h *PreferencesHandler) subscribe(ctx handler.Context, req SubscribeRequest) handler.Response {
	tid, uid, err := caller(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	in := notify.SubscribeInput{
		TenantID:  tid,
		UserID:    uid,
		TypeID:    req.TypeID,
		Channels:  req.Channels,
		Frequency: req.Frequency,
	}
	if req.BatchInterval != "" {
		if in.BatchInterval, err = parseInterval(req.BatchInterval); err != nil {
			return handler.Error(err)
		}
	}
	p, err := h.prefs.Subscribe(ctx, in)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(p)
}

func (h *PreferencesHandler) unsubscribe(ctx handler.Context, req PreferenceRequest) handler.Response {
	tid, uid, err := caller(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	p, err := h.prefs.Unsubscribe(ctx, tid, uid, req.TypeID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(p)
}

func parseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, validationError("batch_interval", "must be a duration such as 1h or 30m")
	}
	return d, nil
}
