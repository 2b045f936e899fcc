package tenant

import (
	"errors"
	"net/http"
)

// ErrorHandler writes the response for a failed resolution.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type config struct {
	errorHandler ErrorHandler
	skipPaths    []string
	required     bool
}

// Option configures Middleware.
type Option func(*config)

func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

// WithSkipPaths bypasses resolution for requests whose path has one of the prefixes.
func WithSkipPaths(paths ...string) Option {
	return func(c *config) { c.skipPaths = append(c.skipPaths, paths...) }
}

// WithRequired rejects requests without a tenant identifier.
func WithRequired(required bool) Option {
	return func(c *config) { c.required = required }
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrNoTenantInContext):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
