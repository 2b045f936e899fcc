package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/courier/binder"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/requestid"
	"github.com/dmitrymomot/courier/pkg/validator"
)

// ErrorMapper translates a domain error into an HTTPError.
// It reports false for errors it does not recognize.
type ErrorMapper func(err error) (HTTPError, bool)

// ErrorPageParams feeds the HTML error page.
type ErrorPageParams struct {
	Title      string
	Message    string
	StatusCode int
	RequestID  string
}

type errorHandlerConfig struct {
	mappers   []ErrorMapper
	errorPage func(ErrorPageParams) templ.Component
}

// ErrorHandlerOption configures NewErrorHandler.
type ErrorHandlerOption func(*errorHandlerConfig)

// WithErrorMapper registers a domain error mapper. Mappers are tried in order.
func WithErrorMapper(m ErrorMapper) ErrorHandlerOption {
	return func(c *errorHandlerConfig) {
		if m != nil {
			c.mappers = append(c.mappers, m)
		}
	}
}

// WithErrorPage renders errors as HTML for browsers (Accept: text/html).
func WithErrorPage(page func(ErrorPageParams) templ.Component) ErrorHandlerOption {
	return func(c *errorHandlerConfig) {
		c.errorPage = page
	}
}

// NewErrorHandler returns an ErrorHandler that resolves the status from
// binder errors, validation errors, HTTPError values and the registered
// mappers, in that order. Client errors are logged at warn level, server
// errors at error level.
func NewErrorHandler[C Context](log *slog.Logger, opts ...ErrorHandlerOption) ErrorHandler[C] {
	if log == nil {
		log = logger.Noop()
	}
	cfg := &errorHandlerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx C, err error) {
		r := ctx.Request()
		w := ctx.ResponseWriter()
		resolved := cfg.resolve(err)

		level := slog.LevelWarn
		if resolved.Code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.LogAttrs(ctx, level, "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", resolved.Code),
			logger.Error(err),
		)

		if cfg.errorPage != nil && wantsHTML(r) {
			page := cfg.errorPage(ErrorPageParams{
				Title:      http.StatusText(resolved.Code),
				Message:    publicMessage(err, resolved),
				StatusCode: resolved.Code,
				RequestID:  requestid.FromContext(ctx),
			})
			if renderErr := TemplWithStatus(page, resolved.Code).Render(w, r); renderErr == nil {
				return
			}
		}

		if validator.IsValidationError(err) {
			_ = JSONError(err).Render(w, r)
			return
		}
		_ = JSONError(withMessage{HTTPError: resolved, msg: publicMessage(err, resolved)}).Render(w, r)
	}
}

func (c *errorHandlerConfig) resolve(err error) HTTPError {
	switch {
	case errors.Is(err, binder.ErrBodyTooLarge):
		return ErrRequestTooLarge
	case errors.Is(err, binder.ErrUnsupportedMediaType):
		return ErrUnsupportedMediaType
	case binder.IsBindError(err):
		return ErrBadRequest
	case validator.IsValidationError(err):
		return ErrBadRequest
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	for _, m := range c.mappers {
		if mapped, ok := m(err); ok {
			return mapped
		}
	}
	return ErrInternalServerError
}

func publicMessage(err error, resolved HTTPError) string {
	if resolved.Code >= http.StatusInternalServerError || err == nil || err.Error() == resolved.Key {
		return http.StatusText(resolved.Code)
	}
	return err.Error()
}

// withMessage keeps the resolved status and code but exposes the error text.
type withMessage struct {
	HTTPError
	msg string
}

func (e withMessage) Error() string { return e.msg }
func (e withMessage) Unwrap() error { return e.HTTPError }

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
