package notify

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")

	ErrNotFound             = errors.New("not found")
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)
	ErrBatchNotFound        = fmt.Errorf("batch %w", ErrNotFound)
	ErrTypeNotFound         = fmt.Errorf("notification type %w", ErrNotFound)
	ErrPreferenceNotFound   = fmt.Errorf("preference %w", ErrNotFound)
	ErrAddressNotFound      = fmt.Errorf("channel address %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)

	ErrNoAddress          = errors.New("no address for channel")
	ErrAddressSuppressed  = errors.New("channel address is suppressed")
	ErrProvider           = errors.New("provider send failed")
	ErrRender             = errors.New("template render failed")
	ErrDeliveryInProgress = errors.New("delivery already in progress or finished")
	ErrBatchedDelivery    = errors.New("notification is delivered with its batch")
	ErrChannelNotFound    = errors.New("channel not registered")
	ErrChannelExists      = errors.New("channel already registered")

	ErrTokenExpired     = errors.New("action token expired")
	ErrInvalidSignature = errors.New("action token signature invalid")
	ErrTokenRevoked     = errors.New("action token revoked")

	ErrForbidden         = errors.New("forbidden")
	ErrUnknownAction     = errors.New("unknown action")
	ErrActionInProgress  = errors.New("action already in progress")
	ErrDuplicateEvent    = errors.New("notification for event already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrHandlerRegistered = errors.New("action handler already registered")
)
