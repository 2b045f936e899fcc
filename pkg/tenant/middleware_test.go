package tenant_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/courier/pkg/tenant"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	valid := uuid.New()

	tests := []struct {
		name     string
		header   string
		path     string
		opts     []tenant.Option
		wantCode int
		wantID   uuid.UUID
	}{
		{name: "valid header", header: valid.String(), path: "/x", wantCode: http.StatusOK, wantID: valid},
		{name: "missing optional", path: "/x", wantCode: http.StatusOK},
		{name: "missing required", path: "/x", opts: []tenant.Option{tenant.WithRequired(true)}, wantCode: http.StatusBadRequest},
		{name: "malformed", header: "acme", path: "/x", wantCode: http.StatusBadRequest},
		{name: "nil uuid", header: uuid.Nil.String(), path: "/x", wantCode: http.StatusBadRequest},
		{name: "skipped path", path: "/health/live", opts: []tenant.Option{tenant.WithRequired(true), tenant.WithSkipPaths("/health")}, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got uuid.UUID
			h := tenant.Middleware(tenant.NewHeaderResolver(""), tt.opts...)(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					got, _ = tenant.IDFromContext(r.Context())
					w.WriteHeader(http.StatusOK)
				}),
			)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tenant.DefaultHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantID, got)
		})
	}
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	_, ok := tenant.LoggerExtractor()(context.Background())
	assert.False(t, ok)

	id := uuid.New()
	attr, ok := tenant.LoggerExtractor()(tenant.WithID(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id.String(), attr.Value.String())
}
