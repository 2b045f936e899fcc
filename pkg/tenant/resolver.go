package tenant

import (
	"net/http"
	"strings"
)

// DefaultHeader carries the tenant id when no other header is configured.
const DefaultHeader = "X-Tenant-ID"

// Resolver extracts a raw tenant identifier from a request.
// An empty string means the request carries none.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver reads the identifier from a request header.
type HeaderResolver struct {
	HeaderName string
}

// NewHeaderResolver falls back to X-Tenant-ID for an empty name.
func NewHeaderResolver(name string) *HeaderResolver {
	if name == "" {
		name = DefaultHeader
	}
	return &HeaderResolver{HeaderName: name}
}

func (r *HeaderResolver) Resolve(req *http.Request) (string, error) {
	return strings.TrimSpace(req.Header.Get(r.HeaderName)), nil
}
