package notify

import (
	"context"

	"github.com/google/uuid"
)

// AccessChecker decides whether a user may see the resource referenced by
// value (the payload field named by NotificationType.AccessCheckKey).
type AccessChecker func(ctx context.Context, key string, value any) (bool, error)

// UserResolver is the engine's view of the identity directory.
type UserResolver interface {
	GetUser(ctx context.Context, tenantID uuid.UUID, userID string) (*User, error)
	ListUsers(ctx context.Context, tenantID uuid.UUID) ([]User, error)
	// GetUserChannelAddress returns "" with a nil error when the user has no
	// address for channel.
	GetUserChannelAddress(ctx context.Context, tenantID uuid.UUID, userID, channel string) (string, error)
	GetSubscribers(ctx context.Context, tenantID uuid.UUID, typeID string) ([]string, error)
	UserMatchesConditions(ctx context.Context, tenantID uuid.UUID, userID string, cond SubscriptionConditions) (bool, error)
	CreateDataAccessChecker(ctx context.Context, tenantID uuid.UUID, userID string) (AccessChecker, error)
}
