// Package tenant resolves the tenant a request acts for and carries its id
// through the request context.
//
// Resolvers extract the raw identifier (header, query parameter, or a chain
// of both). Middleware validates it as a UUID, stores it with WithID and can
// reject requests without one:
//
//	r.Use(tenant.Middleware(tenant.NewHeaderResolver(""), tenant.WithRequired(true)))
//
// LoggerExtractor plugs the id into the logger's context extractors.
package tenant
