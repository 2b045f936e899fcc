package notifications

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/courier/handler"
	"github.com/dmitrymomot/courier/pkg/validator"
	"github.com/dmitrymomot/courier/pkg/webhook"
	"github.com/dmitrymomot/courier/svc/notify"
)

var (
	ErrMissingUser    = errors.New("missing user identity")
	ErrMissingTenant  = errors.New("missing tenant")
	ErrActionMismatch = errors.New("token does not grant this action")
)

var (
	errUnprocessable = handler.HTTPError{Code: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}
	errTokenExpired  = handler.HTTPError{Code: http.StatusBadRequest, Key: "token_expired"}
	errTokenInvalid  = handler.HTTPError{Code: http.StatusBadRequest, Key: "token_invalid"}
	errTokenRevoked  = handler.HTTPError{Code: http.StatusBadRequest, Key: "token_revoked"}
	errInProgress    = handler.HTTPError{Code: http.StatusConflict, Key: "in_progress"}
	errDuplicate     = handler.HTTPError{Code: http.StatusConflict, Key: "duplicate_event"}
	errBatched       = handler.HTTPError{Code: http.StatusConflict, Key: "batched"}
)

// MapError translates notification engine errors into HTTP errors.
func MapError(err error) (handler.HTTPError, bool) {
	switch {
	case errors.Is(err, ErrMissingUser):
		return handler.ErrUnauthorized, true
	case errors.Is(err, ErrMissingTenant), errors.Is(err, ErrActionMismatch):
		return handler.ErrBadRequest, true
	case errors.Is(err, notify.ErrTokenExpired):
		return errTokenExpired, true
	case errors.Is(err, notify.ErrInvalidSignature):
		return errTokenInvalid, true
	case errors.Is(err, notify.ErrTokenRevoked):
		return errTokenRevoked, true
	case errors.Is(err, webhook.ErrInvalidHeaders),
		errors.Is(err, webhook.ErrSignature),
		errors.Is(err, webhook.ErrStaleSignature),
		errors.Is(err, webhook.ErrMissingSecret):
		return handler.ErrUnauthorized, true
	case errors.Is(err, notify.ErrValidation),
		errors.Is(err, notify.ErrUnknownAction),
		errors.Is(err, notify.ErrChannelNotFound):
		return handler.ErrBadRequest, true
	case errors.Is(err, notify.ErrForbidden):
		return handler.ErrForbidden, true
	case errors.Is(err, notify.ErrNotFound):
		return handler.ErrNotFound, true
	case errors.Is(err, notify.ErrDeliveryInProgress), errors.Is(err, notify.ErrActionInProgress):
		return errInProgress, true
	case errors.Is(err, notify.ErrDuplicateEvent):
		return errDuplicate, true
	case errors.Is(err, notify.ErrBatchedDelivery):
		return errBatched, true
	case errors.Is(err, notify.ErrInvalidTransition):
		return handler.ErrConflict, true
	case errors.Is(err, notify.ErrNoAddress), errors.Is(err, notify.ErrAddressSuppressed):
		return errUnprocessable, true
	case errors.Is(err, notify.ErrProvider):
		return handler.ErrBadGateway, true
	}
	return handler.HTTPError{}, false
}

// NewErrorHandler is handler.NewErrorHandler with MapError registered first.
func NewErrorHandler(log *slog.Logger, opts ...handler.ErrorHandlerOption) handler.ErrorHandler[handler.Context] {
	return handler.NewErrorHandler[handler.Context](log, append([]handler.ErrorHandlerOption{handler.WithErrorMapper(MapError)}, opts...)...)
}

func validationError(field, msg string) error {
	return errors.Join(notify.ErrValidation, validator.ValidationErrors{{Field: field, Message: msg, Code: "invalid"}})
}
