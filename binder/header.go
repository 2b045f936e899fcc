package binder

import "net/http"

// Header fills `header:"X-Name"` fields from request headers.
func Header() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindFields(v, "header", func(name string) []string { return r.Header.Values(name) }, ErrInvalidHeader)
	}
}
