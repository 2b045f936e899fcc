package notify

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/logger"
)

// Default feedback thresholds.
const (
	DefaultBounceThreshold    = 3
	DefaultComplaintThreshold = 1
)

// DeliveryStore is the storage DeliveryService needs.
type DeliveryStore interface {
	NotificationStore
	AddressStore
}

// LinkBuilder turns a minted token into an absolute action URL.
type LinkBuilder func(actionType, token string) string

// ActionLinks builds links of the form {base}/actions/{type}?token=...
func ActionLinks(baseURL string) LinkBuilder {
	base := strings.TrimRight(baseURL, "/")
	return func(actionType, token string) string {
		return base + "/actions/" + url.PathEscape(actionType) + "?token=" + url.QueryEscape(token)
	}
}

// DeliveryService sends single notifications and digests and applies
// provider feedback.
type DeliveryService struct {
	store              DeliveryStore
	registry           *Registry
	resolver           UserResolver
	types              TypeLookup
	tokens             *ActionTokenService
	links              LinkBuilder
	now                func() time.Time
	logger             *slog.Logger
	bounceThreshold    int
	complaintThreshold int
}

// DeliveryOption configures a DeliveryService.
type DeliveryOption func(*DeliveryService)

// WithDeliveryLogger sets the logger.
func WithDeliveryLogger(l *slog.Logger) DeliveryOption {
	return func(s *DeliveryService) {
		s.logger = l
	}
}

// WithDeliveryClock overrides time.Now.
func WithDeliveryClock(now func() time.Time) DeliveryOption {
	return func(s *DeliveryService) {
		s.now = now
	}
}

// WithActionTokens mints action links into every delivered message.
func WithActionTokens(tokens *ActionTokenService, links LinkBuilder) DeliveryOption {
	return func(s *DeliveryService) {
		s.tokens = tokens
		s.links = links
	}
}

// WithFeedbackThresholds sets how many bounces or complaints disable an address.
func WithFeedbackThresholds(bounces, complaints int) DeliveryOption {
	return func(s *DeliveryService) {
		if bounces > 0 {
			s.bounceThreshold = bounces
		}
		if complaints > 0 {
			s.complaintThreshold = complaints
		}
	}
}

// NewDeliveryService creates a delivery service.
func NewDeliveryService(store DeliveryStore, registry *Registry, resolver UserResolver, types TypeLookup, opts ...DeliveryOption) *DeliveryService {
	s := &DeliveryService{
		store:              store,
		registry:           registry,
		resolver:           resolver,
		types:              types,
		now:                time.Now,
		logger:             slog.Default(),
		bounceThreshold:    DefaultBounceThreshold,
		complaintThreshold: DefaultComplaintThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deliver sends one notification. Only a pending or failed notification can
// be claimed; a concurrent or repeated call gets ErrDeliveryInProgress and
// never reaches the provider. Failures are recorded, not retried.
func (s *DeliveryService) Deliver(ctx context.Context, id uuid.UUID) (DeliveryResult, error) {
	n, err := s.store.ClaimNotification(ctx, id)
	if err != nil {
		return DeliveryResult{}, err
	}

	res := s.deliver(ctx, n)

	out := DeliveryOutcome{
		Success:           res.Success,
		ProviderMessageID: res.ProviderMessageID,
		Address:           res.Address,
		At:                s.now().UTC(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if err := s.store.FinishNotification(ctx, n.ID, out); err != nil {
		return res, fmt.Errorf("record delivery outcome: %w", err)
	}

	attrs := []slog.Attr{
		logger.TenantID(n.TenantID.String()),
		logger.UserID(n.UserID),
		logger.NotificationID(n.ID),
		logger.TypeID(n.TypeID),
		logger.Channel(n.Channel),
		slog.Int("attempt", n.Attempts),
	}
	if res.Err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "notification delivery failed", append(attrs, logger.Error(res.Err))...)
		return res, res.Err
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "notification delivered", append(attrs, logger.MessageID(res.ProviderMessageID))...)
	return res, nil
}

func (s *DeliveryService) deliver(ctx context.Context, n *Notification) DeliveryResult {
	user, err := s.resolver.GetUser(ctx, n.TenantID, n.UserID)
	if err != nil {
		return DeliveryResult{Err: fmt.Errorf("resolve user: %w", err)}
	}
	ch, err := s.registry.Get(n.Channel)
	if err != nil {
		return DeliveryResult{Err: err}
	}
	typ, err := s.types.Get(ctx, n.TenantID, n.TypeID)
	if err != nil {
		return DeliveryResult{Err: err}
	}

	links, err := s.mintLinks(typ.Actions, func(action string) (string, error) {
		return s.tokens.IssueForNotification(n.ID, action, 0)
	})
	if err != nil {
		return DeliveryResult{Err: err}
	}

	return ch.Deliver(ctx, DeliveryRequest{User: user, Notification: n, TemplateID: typ.TemplateID, Links: links})
}

// DeliverBatch sends one digest for a claimed batch. It does not touch
// storage; the flush path records the outcome.
func (s *DeliveryService) DeliverBatch(ctx context.Context, b *Batch, payload map[string]any) (DeliveryResult, error) {
	user, err := s.resolver.GetUser(ctx, b.TenantID, b.UserID)
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("resolve user: %w", err)
	}
	ch, err := s.registry.Get(b.Channel)
	if err != nil {
		return DeliveryResult{}, err
	}
	typ := digestTypeFor(ctx, s.types, b.TenantID)

	links, err := s.mintLinks(typ.Actions, func(action string) (string, error) {
		return s.tokens.IssueForBatch(b.ID, action, 0)
	})
	if err != nil {
		return DeliveryResult{}, err
	}

	digest := &Notification{
		ID:        b.ID,
		TenantID:  b.TenantID,
		UserID:    b.UserID,
		TypeID:    DigestTypeID,
		Payload:   payload,
		Status:    StatusSending,
		Channel:   b.Channel,
		BatchID:   &b.ID,
		CreatedAt: b.CreatedAt,
	}
	res := ch.Deliver(ctx, DeliveryRequest{User: user, Notification: digest, TemplateID: typ.TemplateID, Links: links})
	return res, res.Err
}

func digestTypeFor(ctx context.Context, types TypeLookup, tenantID uuid.UUID) *NotificationType {
	if t, err := types.Get(ctx, tenantID, DigestTypeID); err == nil {
		return t
	}
	return &NotificationType{ID: DigestTypeID, TemplateID: DigestTypeID}
}

func (s *DeliveryService) mintLinks(actions []string, issue func(action string) (string, error)) (map[string]string, error) {
	links := map[string]string{}
	if s.tokens == nil || s.links == nil {
		return links, nil
	}
	all := append([]string{ActionUnsubscribe, ActionMarkRead}, actions...)
	for _, action := range all {
		if _, done := links[action]; done {
			continue
		}
		tok, err := issue(action)
		if err != nil {
			return nil, fmt.Errorf("mint %s link: %w", action, err)
		}
		links[action] = s.links(action, tok)
	}
	return links, nil
}

// FeedbackEvent is a provider callback about a sent message.
type FeedbackEvent struct {
	MessageID string
	Address   string
	At        time.Time
}

// FeedbackResult summarizes how an event was applied.
type FeedbackResult struct {
	Notifications int             `json:"notifications"`
	Address       *ChannelAddress `json:"address,omitempty"`
}

// RecordBounce counts a bounce against the address and marks the matching
// notifications bounced. The address is disabled at the bounce threshold.
func (s *DeliveryService) RecordBounce(ctx context.Context, ev FeedbackEvent) (FeedbackResult, error) {
	return s.record(ctx, ev, FeedbackBounce, EventBounce)
}

// RecordComplaint counts a spam complaint; one complaint disables the
// address by default.
func (s *DeliveryService) RecordComplaint(ctx context.Context, ev FeedbackEvent) (FeedbackResult, error) {
	return s.record(ctx, ev, FeedbackComplaint, "")
}

// RecordDelivered moves the matching notifications from sent to delivered.
func (s *DeliveryService) RecordDelivered(ctx context.Context, ev FeedbackEvent) (FeedbackResult, error) {
	return s.record(ctx, ev, FeedbackDelivery, EventConfirm)
}

func (s *DeliveryService) record(ctx context.Context, ev FeedbackEvent, kind FeedbackKind, event Event) (FeedbackResult, error) {
	if ev.MessageID == "" {
		return FeedbackResult{}, fmt.Errorf("%w: message id is required", ErrValidation)
	}
	ns, err := s.store.ListByProviderMessageID(ctx, ev.MessageID)
	if err != nil {
		return FeedbackResult{}, err
	}
	if len(ns) == 0 {
		return FeedbackResult{}, ErrNotificationNotFound
	}
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}

	first := ns[0]
	address := cmp.Or(ev.Address, first.Address)
	res := FeedbackResult{Notifications: len(ns)}

	if address != "" {
		rec, err := s.store.RecordFeedback(ctx, AddressFeedback{
			TenantID:           first.TenantID,
			UserID:             first.UserID,
			Channel:            first.Channel,
			Address:            address,
			Kind:               kind,
			BounceThreshold:    s.bounceThreshold,
			ComplaintThreshold: s.complaintThreshold,
			At:                 ev.At,
		})
		if err != nil {
			return res, err
		}
		res.Address = rec
		if rec.IsDisabled && kind != FeedbackDelivery {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "channel address suppressed",
				logger.TenantID(first.TenantID.String()),
				logger.UserID(first.UserID),
				logger.Channel(first.Channel),
				slog.Int("bounces", rec.BounceCount),
				slog.Int("complaints", rec.ComplaintCount),
			)
		}
	}

	if event != "" {
		for _, n := range ns {
			err := s.store.TransitionNotification(ctx, n.ID, event)
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				return res, err
			}
		}
	}
	return res, nil
}

// MarkRead sets the read flag on a delivered notification owned by the user.
func (s *DeliveryService) MarkRead(ctx context.Context, tenantID uuid.UUID, userID string, id uuid.UUID) (*Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.TenantID != tenantID || n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	if n.Read {
		return n, nil
	}
	if !n.IsDelivered() {
		return nil, fmt.Errorf("%w: notification %s is %s", ErrValidation, n.ID, n.Status)
	}
	at := s.now().UTC()
	if err := s.store.MarkNotificationRead(ctx, id, at); err != nil {
		return nil, err
	}
	n.Read = true
	n.ReadAt = &at
	return n, nil
}
