package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/validator"
)

// Fan-out defaults.
const (
	DefaultConcurrency       = 16
	DefaultSubscriberTimeout = 30 * time.Second
)

// SendRequest triggers one notification type for an event.
type SendRequest struct {
	TenantID uuid.UUID
	TypeID   string
	Payload  map[string]any
	// Recipients overrides subscriber resolution when set.
	Recipients []string
	// EventID makes retried sends for the same event idempotent.
	EventID string
}

// SendResult aggregates fan-out outcomes per notification row; Skipped also
// counts recipients that got no row at all.
type SendResult struct {
	Queued    int `json:"queued"`
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// SendStore is the storage Service needs.
type SendStore interface {
	NotificationStore
	BatchStore
	PreferenceStore
}

// Service fans events out to subscribers.
type Service struct {
	store             SendStore
	types             TypeLookup
	prefs             *PreferenceService
	resolver          UserResolver
	delivery          *DeliveryService
	channels          ChannelSet
	now               func() time.Time
	logger            *slog.Logger
	concurrency       int
	subscriberTimeout time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// WithServiceClock overrides time.Now.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithConcurrency bounds how many subscribers are processed at once.
func WithConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithSubscriberTimeout bounds the work done for one subscriber.
func WithSubscriberTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.subscriberTimeout = d
		}
	}
}

// NewService creates the fan-out service.
func NewService(store SendStore, types TypeLookup, prefs *PreferenceService, resolver UserResolver, delivery *DeliveryService, channels ChannelSet, opts ...ServiceOption) *Service {
	s := &Service{
		store:             store,
		types:             types,
		prefs:             prefs,
		resolver:          resolver,
		delivery:          delivery,
		channels:          channels,
		now:               time.Now,
		logger:            slog.Default(),
		concurrency:       DefaultConcurrency,
		subscriberTimeout: DefaultSubscriberTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type fanoutCounters struct {
	queued, delivered, skipped, failed atomic.Int64
}

func (c *fanoutCounters) result() SendResult {
	return SendResult{
		Queued:    int(c.queued.Load()),
		Delivered: int(c.delivered.Load()),
		Skipped:   int(c.skipped.Load()),
		Failed:    int(c.failed.Load()),
	}
}

// Send resolves subscribers and, per enabled channel, either delivers now or
// queues into a digest batch. Subscribers run on a bounded pool detached from
// the caller's cancellation; a failing subscriber is logged and counted and
// never stops the others.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if err := validator.Apply(
		validator.RequiredUUID("tenant_id", req.TenantID),
		validator.RequiredString("type_id", req.TypeID),
		validator.MaxLenString("event_id", req.EventID, 255),
		validator.MaxLenSlice("recipients", req.Recipients, 10000),
	); err != nil {
		return SendResult{}, errors.Join(ErrValidation, err)
	}
	if req.TypeID == DigestTypeID {
		return SendResult{}, fmt.Errorf("%w: %s is reserved", ErrValidation, DigestTypeID)
	}

	typ, err := s.types.Get(ctx, req.TenantID, req.TypeID)
	if err != nil {
		return SendResult{}, err
	}

	candidates, err := s.candidates(ctx, req, typ)
	if err != nil {
		return SendResult{}, err
	}

	var counters fanoutCounters
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	base := context.WithoutCancel(ctx)
	for _, userID := range candidates {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(base, s.subscriberTimeout)
			defer cancel()

			if err := s.sendTo(sctx, req, typ, userID, &counters); err != nil {
				s.logger.LogAttrs(ctx, slog.LevelError, "fan-out to subscriber failed",
					logger.TenantID(req.TenantID.String()),
					logger.UserID(userID),
					logger.TypeID(typ.ID),
					logger.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := counters.result()
	s.logger.LogAttrs(ctx, slog.LevelInfo, "notification fan-out finished",
		logger.TenantID(req.TenantID.String()),
		logger.TypeID(typ.ID),
		slog.Int("candidates", len(candidates)),
		slog.Int("queued", res.Queued),
		slog.Int("delivered", res.Delivered),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

// candidates returns explicit recipients (filtered by conditions when the
// type has any) or the union of every subscriber source.
func (s *Service) candidates(ctx context.Context, req SendRequest, typ *NotificationType) ([]string, error) {
	if len(req.Recipients) > 0 {
		recipients := dedupe(req.Recipients)
		if typ.Conditions.IsZero() {
			return recipients, nil
		}
		out := recipients[:0]
		for _, userID := range recipients {
			ok, err := s.resolver.UserMatchesConditions(ctx, req.TenantID, userID, typ.Conditions)
			if err != nil || !ok {
				continue
			}
			out = append(out, userID)
		}
		return out, nil
	}

	set := slices.Clone(typ.Subscribers)

	enabled, err := s.store.ListEnabledSubscribers(ctx, req.TenantID, typ.ID)
	if err != nil {
		return nil, fmt.Errorf("list preference subscribers: %w", err)
	}
	set = append(set, enabled...)

	fromDirectory, err := s.resolver.GetSubscribers(ctx, req.TenantID, typ.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve subscribers: %w", err)
	}
	set = append(set, fromDirectory...)

	if !typ.Conditions.IsZero() {
		users, err := s.resolver.ListUsers(ctx, req.TenantID)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		for _, u := range users {
			ok, err := s.resolver.UserMatchesConditions(ctx, req.TenantID, u.ID, typ.Conditions)
			if err != nil {
				s.logger.LogAttrs(ctx, slog.LevelWarn, "condition check failed",
					logger.UserID(u.ID), logger.TypeID(typ.ID), logger.Error(err))
				continue
			}
			if ok {
				set = append(set, u.ID)
			}
		}
	}

	out := dedupe(set)
	slices.Sort(out)
	return out, nil
}

func (s *Service) sendTo(ctx context.Context, req SendRequest, typ *NotificationType, userID string, c *fanoutCounters) error {
	policy, err := s.prefs.Resolve(ctx, req.TenantID, userID, typ)
	if err != nil {
		c.failed.Add(1)
		return fmt.Errorf("resolve preference: %w", err)
	}
	if !policy.Enabled || len(policy.Channels) == 0 {
		c.skipped.Add(1)
		return nil
	}
	if typ.AccessCheckKey != "" && !s.canAccess(ctx, req, typ, userID) {
		c.skipped.Add(1)
		return nil
	}

	now := s.now().UTC()
	batched, scheduledFor := policy.Route(now)

	var errs []error
	for _, channel := range policy.Channels {
		if s.channels != nil && !s.channels.Has(channel) {
			c.skipped.Add(1)
			continue
		}

		n := &Notification{
			ID:        uuid.New(),
			TenantID:  req.TenantID,
			UserID:    userID,
			TypeID:    typ.ID,
			EventID:   req.EventID,
			Payload:   req.Payload,
			Status:    StatusPending,
			Channel:   channel,
			CreatedAt: now,
		}

		if batched {
			_, err := s.store.EnqueueNotification(ctx, n, scheduledFor)
			switch {
			case errors.Is(err, ErrDuplicateEvent):
				c.skipped.Add(1)
			case err != nil:
				c.failed.Add(1)
				errs = append(errs, fmt.Errorf("enqueue on %s: %w", channel, err))
			default:
				c.queued.Add(1)
			}
			continue
		}

		if err := s.store.CreateNotification(ctx, n); err != nil {
			if errors.Is(err, ErrDuplicateEvent) {
				c.skipped.Add(1)
				continue
			}
			c.failed.Add(1)
			errs = append(errs, fmt.Errorf("create on %s: %w", channel, err))
			continue
		}
		if _, err := s.delivery.Deliver(ctx, n.ID); err != nil {
			c.failed.Add(1)
			continue
		}
		c.delivered.Add(1)
	}
	return errors.Join(errs...)
}

// canAccess treats checker errors as a denial.
func (s *Service) canAccess(ctx context.Context, req SendRequest, typ *NotificationType, userID string) bool {
	value, ok := req.Payload[typ.AccessCheckKey]
	if !ok {
		return false
	}
	check, err := s.resolver.CreateDataAccessChecker(ctx, req.TenantID, userID)
	if err != nil || check == nil {
		return false
	}
	allowed, err := check(ctx, typ.AccessCheckKey, value)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "data access check failed",
			logger.UserID(userID), logger.TypeID(typ.ID), logger.Error(err))
		return false
	}
	return allowed
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, userID string, opts ListOptions) ([]Notification, error) {
	switch {
	case opts.Limit <= 0:
		opts.Limit = 50
	case opts.Limit > 200:
		opts.Limit = 200
	}
	return s.store.ListNotifications(ctx, tenantID, userID, opts)
}

// Get returns a notification owned by the user.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, userID string, id uuid.UUID) (*Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.TenantID != tenantID || n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	return n, nil
}
