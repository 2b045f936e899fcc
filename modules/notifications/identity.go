package notifications

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/courier/pkg/tenant"
)

// UserHeader carries the authenticated user id set by the upstream gateway.
const UserHeader = "X-User-ID"

func tenantID(ctx context.Context) (uuid.UUID, error) {
	id, ok := tenant.IDFromContext(ctx)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrMissingTenant
	}
	return id, nil
}

// caller returns the tenant and user a request acts for.
func caller(ctx context.Context, userID string) (uuid.UUID, string, error) {
	tid, err := tenantID(ctx)
	if err != nil {
		return uuid.Nil, "", err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return uuid.Nil, "", ErrMissingUser
	}
	return tid, userID, nil
}
