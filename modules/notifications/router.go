package notifications

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Mountable registers its routes on a shared router.
type Mountable interface {
	Mount(r chi.Router)
}

// RouterOptions configures which handlers to mount. Each one is optional
// and is only mounted if provided.
type RouterOptions struct {
	// Tenant-scoped API
	Notifications Mountable
	Batches       Mountable
	Preferences   Mountable

	// Public endpoints reached from emails and providers
	Actions  Mountable
	Webhooks Mountable

	// Invoker endpoints (retry, flush), guarded by OperationsToken when set
	Operations      Mountable
	OperationsToken string
}

// Router creates the notification API router.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(tenant.Middleware(tenant.NewHeaderResolver("")))
//	r.Mount("/", notifications.Router(notifications.RouterOptions{
//	    Notifications: notifications.NewNotificationsHandler(svc, delivery, actions, eh),
//	    Actions:       notifications.NewActionLinksHandler(actions, pages, eh),
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	for _, m := range []Mountable{opts.Notifications, opts.Batches, opts.Preferences, opts.Actions, opts.Webhooks} {
		if m != nil {
			m.Mount(r)
		}
	}
	if opts.Operations != nil {
		r.Group(func(ops chi.Router) {
			if opts.OperationsToken != "" {
				ops.Use(RequireBearer(opts.OperationsToken))
			}
			opts.Operations.Mount(ops)
		})
	}

	return r
}

// RequireBearer rejects requests whose Authorization header does not carry
// the given bearer token.
func RequireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
