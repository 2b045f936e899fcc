package binder

import "net/http"

// Query fills `query:"name"` fields. Slices accept repeated keys and
// comma-separated values.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		q := r.URL.Query()
		return bindFields(v, "query", func(name string) []string { return q[name] }, ErrInvalidQuery)
	}
}
