package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/webhook"
)

// UnsubscribeHandler turns off the notification's channel for its type.
type UnsubscribeHandler struct {
	prefs *PreferenceService
}

// NewUnsubscribeHandler creates the built-in unsubscribe handler.
func NewUnsubscribeHandler(prefs *PreferenceService) *UnsubscribeHandler {
	return &UnsubscribeHandler{prefs: prefs}
}

func (h *UnsubscribeHandler) Type() string     { return ActionUnsubscribe }
func (h *UnsubscribeHandler) Idempotent() bool { return true }

func (h *UnsubscribeHandler) Handle(ctx context.Context, in ActionInput) (map[string]any, error) {
	n := in.Notification
	p, err := h.prefs.DisableChannel(ctx, n.TenantID, n.UserID, n.TypeID, n.Channel)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type_id": n.TypeID,
		"channel": n.Channel,
		"enabled": p.Enabled,
	}, nil
}

// MarkReadHandler flags the notification read.
type MarkReadHandler struct {
	delivery *DeliveryService
}

// NewMarkReadHandler creates the built-in mark_read handler.
func NewMarkReadHandler(delivery *DeliveryService) *MarkReadHandler {
	return &MarkReadHandler{delivery: delivery}
}

func (h *MarkReadHandler) Type() string     { return ActionMarkRead }
func (h *MarkReadHandler) Idempotent() bool { return true }

func (h *MarkReadHandler) Handle(ctx context.Context, in ActionInput) (map[string]any, error) {
	n := in.Notification
	updated, err := h.delivery.MarkRead(ctx, n.TenantID, n.UserID, n.ID)
	if err != nil {
		return nil, err
	}
	res := map[string]any{"read": true}
	if updated.ReadAt != nil {
		res["read_at"] = updated.ReadAt.UTC().Format(time.RFC3339)
	}
	return res, nil
}

// WebhookEvent is the body POSTed by WebhookHandler.
type WebhookEvent struct {
	Action         string         `json:"action"`
	NotificationID uuid.UUID      `json:"notification_id"`
	TenantID       uuid.UUID      `json:"tenant_id"`
	UserID         string         `json:"user_id"`
	TypeID         string         `json:"type_id"`
	Payload        map[string]any `json:"payload,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	ViaToken       bool           `json:"via_token"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// WebhookHandler forwards an application-defined action, such as "approve",
// to an HTTP endpoint signed with the sender's secret.
type WebhookHandler struct {
	action     string
	url        string
	sender     *webhook.Sender
	idempotent bool
	now        func() time.Time
}

// NewWebhookHandler creates a handler for action that posts to url.
func NewWebhookHandler(action, url string, sender *webhook.Sender, idempotent bool) *WebhookHandler {
	return &WebhookHandler{
		action:     action,
		url:        url,
		sender:     sender,
		idempotent: idempotent,
		now:        time.Now,
	}
}

func (h *WebhookHandler) Type() string     { return h.action }
func (h *WebhookHandler) Idempotent() bool { return h.idempotent }

func (h *WebhookHandler) Handle(ctx context.Context, in ActionInput) (map[string]any, error) {
	n := in.Notification
	res, err := h.sender.Send(ctx, h.url, WebhookEvent{
		Action:         h.action,
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		UserID:         n.UserID,
		TypeID:         n.TypeID,
		Payload:        n.Payload,
		Data:           in.ActionData,
		ViaToken:       in.ViaToken,
		OccurredAt:     h.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status_code": res.StatusCode,
		"attempts":    res.Attempts,
	}, nil
}
