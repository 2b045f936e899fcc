package notify

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of a Notification.
type Status string

const (
	StatusPending        Status = "pending"
	StatusQueuedForBatch Status = "queued_for_batch"
	StatusSending        Status = "sending"
	StatusSent           Status = "sent"
	StatusDelivered      Status = "delivered"
	StatusBounced        Status = "bounced"
	StatusFailed         Status = "failed"
)

// BatchStatus is the state of a digest Batch.
type BatchStatus string

const (
	BatchPending BatchStatus = "pending"
	BatchSending BatchStatus = "sending"
	BatchSent    BatchStatus = "sent"
	BatchFailed  BatchStatus = "failed"
)

// Frequency selects immediate delivery or digest batching.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyBatched   Frequency = "batched"
)

// ActionStatus tracks a claimed action row.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionSucceeded ActionStatus = "succeeded"
	ActionFailed    ActionStatus = "failed"
)

// Built-in action types.
const (
	ActionUnsubscribe = "unsubscribe"
	ActionMarkRead    = "mark_read"
)

// DigestTypeID is the synthetic notification type used for batch digests.
const DigestTypeID = "batch.digest"

// ChannelEmail is the identifier of the email channel.
const ChannelEmail = "email"

// SubscriptionConditions narrows the audience of a notification type to
// users matching every set field.
type SubscriptionConditions struct {
	HasCustomerAssignment bool     `json:"has_customer_assignment,omitempty" yaml:"has_customer_assignment"`
	HasManager            bool     `json:"has_manager,omitempty" yaml:"has_manager"`
	Roles                 []string `json:"roles,omitempty" yaml:"roles"`
}

// IsZero reports whether no condition is set.
func (c SubscriptionConditions) IsZero() bool {
	return !c.HasCustomerAssignment && !c.HasManager && len(c.Roles) == 0
}

// NotificationType is a catalog entry. An empty TenantID marks a global type;
// a tenant type with the same ID shadows it.
type NotificationType struct {
	ID              string                 `json:"id" yaml:"id"`
	TenantID        uuid.UUID              `json:"tenant_id,omitzero" yaml:"tenant_id"`
	Name            string                 `json:"name" yaml:"name"`
	DefaultChannels []string               `json:"default_channels" yaml:"default_channels"`
	TemplateID      string                 `json:"template_id" yaml:"template_id"`
	Subscribers     []string               `json:"subscribers,omitempty" yaml:"subscribers"`
	Conditions      SubscriptionConditions `json:"conditions,omitzero" yaml:"conditions"`
	AccessCheckKey  string                 `json:"access_check_key,omitempty" yaml:"access_check_key"`
	Actions         []string               `json:"actions,omitempty" yaml:"actions"`
	CreatedAt       time.Time              `json:"created_at" yaml:"-"`
}

// IsGlobal reports whether the type applies to every tenant.
func (t NotificationType) IsGlobal() bool {
	return t.TenantID == uuid.Nil
}

// QuietHours is a local-time window "HH:MM"-"HH:MM", end exclusive.
// A window whose end precedes its start wraps midnight.
type QuietHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Preference is a user's stored choice for one notification type.
type Preference struct {
	TenantID      uuid.UUID     `json:"tenant_id"`
	UserID        string        `json:"user_id"`
	TypeID        string        `json:"type_id"`
	Enabled       bool          `json:"enabled"`
	Channels      []string      `json:"channels"`
	Frequency     Frequency     `json:"frequency"`
	BatchInterval time.Duration `json:"batch_interval,omitempty"`
	QuietHours    *QuietHours   `json:"quiet_hours,omitempty"`
	Timezone      string        `json:"timezone,omitempty"`
	CreatedAt     time.Time     `json:"created_at,omitzero"`
	UpdatedAt     time.Time     `json:"updated_at,omitzero"`
}

// Notification is one row per recipient, triggering event and channel.
type Notification struct {
	ID                uuid.UUID      `json:"id"`
	TenantID          uuid.UUID      `json:"tenant_id"`
	UserID            string         `json:"user_id"`
	TypeID            string         `json:"type_id"`
	EventID           string         `json:"event_id,omitempty"`
	Payload           map[string]any `json:"payload"`
	Status            Status         `json:"status"`
	Channel           string         `json:"channel"`
	Address           string         `json:"address,omitempty"`
	BatchID           *uuid.UUID     `json:"batch_id,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	LastError         string         `json:"last_error,omitempty"`
	Attempts          int            `json:"attempts"`
	Read              bool           `json:"read"`
	ReadAt            *time.Time     `json:"read_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
}

// IsDelivered reports whether the provider accepted the message.
func (n *Notification) IsDelivered() bool {
	return n.Status == StatusSent || n.Status == StatusDelivered
}

// Batch groups queued notifications for one digest send.
type Batch struct {
	ID                uuid.UUID   `json:"id"`
	TenantID          uuid.UUID   `json:"tenant_id"`
	UserID            string      `json:"user_id"`
	Channel           string      `json:"channel"`
	ScheduledFor      time.Time   `json:"scheduled_for"`
	Status            BatchStatus `json:"status"`
	Attempts          int         `json:"attempts"`
	ProviderMessageID string      `json:"provider_message_id,omitempty"`
	LastError         string      `json:"last_error,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	SentAt            *time.Time  `json:"sent_at,omitempty"`
}

// Action records an action performed on a notification. There is at most one
// row per (notification, action type); retries reuse it.
type Action struct {
	ID             uuid.UUID      `json:"id"`
	TenantID       uuid.UUID      `json:"tenant_id"`
	NotificationID uuid.UUID      `json:"notification_id"`
	ActionType     string         `json:"action_type"`
	ActionData     map[string]any `json:"action_data,omitempty"`
	Status         ActionStatus   `json:"status"`
	Result         map[string]any `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	Attempts       int            `json:"attempts"`
	PerformedAt    time.Time      `json:"performed_at"`
}

// BatchAction records an action fanned out over a batch's members.
type BatchAction struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	BatchID     uuid.UUID      `json:"batch_id"`
	ActionType  string         `json:"action_type"`
	ActionData  map[string]any `json:"action_data,omitempty"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Result      map[string]any `json:"result,omitempty"`
	PerformedAt time.Time      `json:"performed_at"`
}

// ChannelAddress tracks deliverability of one address.
type ChannelAddress struct {
	TenantID       uuid.UUID  `json:"tenant_id"`
	UserID         string     `json:"user_id"`
	Channel        string     `json:"channel"`
	Address        string     `json:"address"`
	IsVerified     bool       `json:"is_verified"`
	IsDisabled     bool       `json:"is_disabled"`
	BounceCount    int        `json:"bounce_count"`
	ComplaintCount int        `json:"complaint_count"`
	LastBounceAt   *time.Time `json:"last_bounce_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// User is the directory view of a recipient.
type User struct {
	ID          string    `json:"id" yaml:"id"`
	TenantID    uuid.UUID `json:"tenant_id" yaml:"-"`
	Name        string    `json:"name" yaml:"name"`
	Email       string    `json:"email" yaml:"email"`
	Timezone    string    `json:"timezone,omitempty" yaml:"timezone"`
	Roles       []string  `json:"roles,omitempty" yaml:"roles"`
	ManagerID   string    `json:"manager_id,omitempty" yaml:"manager_id"`
	CustomerIDs []string  `json:"customer_ids,omitempty" yaml:"customer_ids"`
}

// HasRole reports whether the user holds role.
func (u User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// Matches evaluates c against the user's directory attributes.
func (c SubscriptionConditions) Matches(u User) bool {
	if c.HasCustomerAssignment && len(u.CustomerIDs) == 0 {
		return false
	}
	if c.HasManager && u.ManagerID == "" {
		return false
	}
	for _, r := range c.Roles {
		if u.HasRole(r) {
			return true
		}
	}
	return len(c.Roles) == 0
}
