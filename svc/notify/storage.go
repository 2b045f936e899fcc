package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ListOptions filters a user's notifications. Results are newest first.
type ListOptions struct {
	Limit      int
	Offset     int
	OnlyUnread bool
	TypeID     string
	Statuses   []Status
	Since      *time.Time
}

// DeliveryOutcome finishes a claimed notification or batch.
type DeliveryOutcome struct {
	Success           bool
	ProviderMessageID string
	Address           string
	Error             string
	At                time.Time
}

// NotificationStore persists notifications. Lookups by id are global; the
// returned row carries its tenant for the caller to scope further work.
type NotificationStore interface {
	// CreateNotification inserts n. A second row for the same
	// (tenant, user, type, channel, event id) yields ErrDuplicateEvent.
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error)
	ListNotifications(ctx context.Context, tenantID uuid.UUID, userID string, opts ListOptions) ([]Notification, error)

	// ClaimNotification moves a pending or failed row to sending and bumps
	// its attempt counter. Batch members yield ErrBatchedDelivery; any other
	// status yields ErrDeliveryInProgress.
	ClaimNotification(ctx context.Context, id uuid.UUID) (*Notification, error)
	// FinishNotification moves a sending row to sent or failed.
	FinishNotification(ctx context.Context, id uuid.UUID, out DeliveryOutcome) error
	// TransitionNotification applies event if NotificationLifecycle allows it,
	// otherwise returns ErrInvalidTransition.
	TransitionNotification(ctx context.Context, id uuid.UUID, event Event) error
	ListByProviderMessageID(ctx context.Context, messageID string) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID, at time.Time) error
}

// BatchStore persists digest batches.
type BatchStore interface {
	// EnqueueNotification inserts n as queued_for_batch attached to the open
	// batch for (tenant, user, channel, scheduledFor), creating it if needed.
	// Both writes happen atomically.
	EnqueueNotification(ctx context.Context, n *Notification, scheduledFor time.Time) (*Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*Batch, error)
	// ListBatchMembers returns the batch notifications oldest first.
	ListBatchMembers(ctx context.Context, batchID uuid.UUID) ([]Notification, error)
	ListDueBatches(ctx context.Context, now time.Time, limit int) ([]Batch, error)
	// ClaimBatch moves a pending batch to sending, else ErrDeliveryInProgress.
	ClaimBatch(ctx context.Context, id uuid.UUID) (*Batch, error)
	// CompleteBatch marks a sending batch and its queued members sent.
	CompleteBatch(ctx context.Context, id uuid.UUID, out DeliveryOutcome) error
	// ReleaseBatch returns a sending batch to pending with the error, or marks
	// it and its members failed once attempts reach maxAttempts.
	ReleaseBatch(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int) (*Batch, error)
}

// ActionClaim asks for the single action row of (notification, action type).
type ActionClaim struct {
	TenantID       uuid.UUID
	NotificationID uuid.UUID
	ActionType     string
	ActionData     map[string]any
	// ReclaimSucceeded lets non-idempotent handlers run again after success.
	ReclaimSucceeded bool
	// StaleAfter lets a pending row abandoned by a crashed worker be reclaimed.
	StaleAfter time.Duration
	At         time.Time
}

// ActionStore persists action outcomes.
type ActionStore interface {
	// ClaimAction returns the row and whether the caller now owns it. A row
	// that already succeeded is returned unclaimed; one still pending yields
	// ErrActionInProgress.
	ClaimAction(ctx context.Context, c ActionClaim) (*Action, bool, error)
	FinishAction(ctx context.Context, id uuid.UUID, status ActionStatus, result map[string]any, errMsg string, at time.Time) error
	GetAction(ctx context.Context, notificationID uuid.UUID, actionType string) (*Action, error)
	CreateBatchAction(ctx context.Context, a *BatchAction) error
}

// PreferenceStore persists user preferences. Rows are never deleted.
type PreferenceStore interface {
	GetPreference(ctx context.Context, tenantID uuid.UUID, userID, typeID string) (*Preference, error)
	ListPreferences(ctx context.Context, tenantID uuid.UUID, userID string) ([]Preference, error)
	UpsertPreference(ctx context.Context, p *Preference) error
	ListEnabledSubscribers(ctx context.Context, tenantID uuid.UUID, typeID string) ([]string, error)
}

// FeedbackKind classifies provider feedback.
type FeedbackKind string

const (
	FeedbackBounce    FeedbackKind = "bounce"
	FeedbackComplaint FeedbackKind = "complaint"
	FeedbackDelivery  FeedbackKind = "delivery"
)

// AddressFeedback increments counters on one address and disables it once a
// threshold is reached.
type AddressFeedback struct {
	TenantID           uuid.UUID
	UserID             string
	Channel            string
	Address            string
	Kind               FeedbackKind
	BounceThreshold    int
	ComplaintThreshold int
	At                 time.Time
}

// ApplyFeedback bumps the counter for fb.Kind and disables the address once
// a positive threshold is reached.
func (a *ChannelAddress) ApplyFeedback(fb AddressFeedback) {
	switch fb.Kind {
	case FeedbackBounce:
		a.BounceCount++
		at := fb.At
		a.LastBounceAt = &at
	case FeedbackComplaint:
		a.ComplaintCount++
	case FeedbackDelivery:
		a.IsVerified = true
	}
	if fb.BounceThreshold > 0 && a.BounceCount >= fb.BounceThreshold {
		a.IsDisabled = true
	}
	if fb.ComplaintThreshold > 0 && a.ComplaintCount >= fb.ComplaintThreshold {
		a.IsDisabled = true
	}
	a.UpdatedAt = fb.At
}

// NormalizeAddress is the canonical form addresses are stored under.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// AddressStore tracks deliverability per address.
type AddressStore interface {
	GetAddress(ctx context.Context, tenantID uuid.UUID, userID, channel, address string) (*ChannelAddress, error)
	RecordFeedback(ctx context.Context, fb AddressFeedback) (*ChannelAddress, error)
}

// TypeStore persists the notification type catalog.
type TypeStore interface {
	// GetType prefers the tenant's own type over a global one with the same id.
	GetType(ctx context.Context, tenantID uuid.UUID, id string) (*NotificationType, error)
	ListTypes(ctx context.Context, tenantID uuid.UUID) ([]NotificationType, error)
	UpsertType(ctx context.Context, t *NotificationType) error
}

// Storage is everything the engine persists.
type Storage interface {
	NotificationStore
	BatchStore
	ActionStore
	PreferenceStore
	AddressStore
	TypeStore
}
