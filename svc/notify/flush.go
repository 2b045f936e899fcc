package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/logger"
)

// Flush defaults.
const (
	DefaultDigestLimit      = 10
	DefaultMaxBatchAttempts = 5
	DefaultFlushLimit       = 100
)

// FlushResult counts what one flush run did.
type FlushResult struct {
	Flushed int `json:"flushed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Flusher sends due digest batches. It is driven by an external trigger.
type Flusher struct {
	store       BatchStore
	delivery    *DeliveryService
	now         func() time.Time
	logger      *slog.Logger
	limit       int
	digestLimit int
	maxAttempts int
}

// FlusherOption configures a Flusher.
type FlusherOption func(*Flusher)

// WithFlusherLogger sets the logger.
func WithFlusherLogger(l *slog.Logger) FlusherOption {
	return func(f *Flusher) {
		f.logger = l
	}
}

// WithFlushLimit caps how many batches one run picks up.
func WithFlushLimit(n int) FlusherOption {
	return func(f *Flusher) {
		if n > 0 {
			f.limit = n
		}
	}
}

// WithDigestLimit caps how many items a digest lists.
func WithDigestLimit(n int) FlusherOption {
	return func(f *Flusher) {
		if n > 0 {
			f.digestLimit = n
		}
	}
}

// WithMaxBatchAttempts sets after how many failed sends a batch gives up.
func WithMaxBatchAttempts(n int) FlusherOption {
	return func(f *Flusher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithFlusherClock overrides time.Now.
func WithFlusherClock(now func() time.Time) FlusherOption {
	return func(f *Flusher) {
		f.now = now
	}
}

// NewFlusher creates a Flusher.
func NewFlusher(store BatchStore, delivery *DeliveryService, opts ...FlusherOption) *Flusher {
	f := &Flusher{
		store:       store,
		delivery:    delivery,
		now:         time.Now,
		logger:      slog.Default(),
		limit:       DefaultFlushLimit,
		digestLimit: DefaultDigestLimit,
		maxAttempts: DefaultMaxBatchAttempts,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Flush sends every pending batch due at now. A zero now means the current time.
// Batches claimed by a concurrent run are skipped.
func (f *Flusher) Flush(ctx context.Context, now time.Time) (FlushResult, error) {
	if now.IsZero() {
		now = f.now()
	}
	due, err := f.store.ListDueBatches(ctx, now.UTC(), f.limit)
	if err != nil {
		return FlushResult{}, err
	}

	var res FlushResult
	for _, b := range due {
		switch err := f.FlushBatch(ctx, b.ID); {
		case err == nil:
			res.Flushed++
		case errors.Is(err, ErrDeliveryInProgress):
			res.Skipped++
		default:
			res.Failed++
		}
	}

	if len(due) > 0 {
		f.logger.LogAttrs(ctx, slog.LevelInfo, "batch flush finished",
			logger.Component("flusher"),
			slog.Int("due", len(due)),
			slog.Int("flushed", res.Flushed),
			slog.Int("failed", res.Failed),
			slog.Int("skipped", res.Skipped),
		)
	}
	return res, nil
}

// FlushBatch claims one batch and sends its digest. On failure the batch is
// released for the next run, or failed after the attempt limit.
func (f *Flusher) FlushBatch(ctx context.Context, id uuid.UUID) error {
	b, err := f.store.ClaimBatch(ctx, id)
	if err != nil {
		return err
	}

	members, err := f.store.ListBatchMembers(ctx, b.ID)
	if err != nil {
		return f.release(ctx, b, err)
	}
	if len(members) == 0 {
		return f.store.CompleteBatch(ctx, b.ID, DeliveryOutcome{Success: true, At: f.now().UTC()})
	}

	res, err := f.delivery.DeliverBatch(ctx, b, ComposeDigest(members, f.digestLimit))
	if err != nil {
		return f.release(ctx, b, err)
	}

	if err := f.store.CompleteBatch(ctx, b.ID, DeliveryOutcome{
		Success:           true,
		ProviderMessageID: res.ProviderMessageID,
		Address:           res.Address,
		At:                f.now().UTC(),
	}); err != nil {
		return err
	}
	f.logger.LogAttrs(ctx, slog.LevelInfo, "digest sent",
		logger.TenantID(b.TenantID.String()),
		logger.UserID(b.UserID),
		logger.BatchID(b.ID),
		logger.Channel(b.Channel),
		logger.MessageID(res.ProviderMessageID),
		slog.Int("items", len(members)),
	)
	return nil
}

func (f *Flusher) release(ctx context.Context, b *Batch, cause error) error {
	released, err := f.store.ReleaseBatch(ctx, b.ID, cause.Error(), f.maxAttempts)
	if err != nil {
		return errors.Join(cause, err)
	}
	f.logger.LogAttrs(ctx, slog.LevelWarn, "digest send failed",
		logger.TenantID(b.TenantID.String()),
		logger.BatchID(b.ID),
		slog.Int("attempt", b.Attempts),
		slog.String("status", string(released.Status)),
		logger.Error(cause),
	)
	return cause
}

// DigestItem is one line of a digest.
type DigestItem struct {
	NotificationID string         `json:"notification_id"`
	TypeID         string         `json:"type_id"`
	Payload        map[string]any `json:"payload"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ComposeDigest lists members oldest first, capped at limit, with the total
// and the number left out.
func ComposeDigest(members []Notification, limit int) map[string]any {
	shown := members
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	items := make([]DigestItem, 0, len(shown))
	for _, n := range shown {
		items = append(items, DigestItem{
			NotificationID: n.ID.String(),
			TypeID:         n.TypeID,
			Payload:        n.Payload,
			CreatedAt:      n.CreatedAt,
		})
	}
	return map[string]any{
		"items": items,
		"total": len(members),
		"more":  len(members) - len(shown),
	}
}
