// Package handler provides typed HTTP handlers on top of net/http.
//
// A HandlerFunc receives a Context and a request struct filled by binders
// and returns a Response. Wrap turns it into an http.HandlerFunc:
//
//	r.Get("/preferences/{typeId}", handler.Wrap(getPreference,
//		handler.WithBinders[handler.Context, PreferenceRequest](
//			binder.Path(chi.URLParam),
//			binder.Header(),
//		),
//		handler.WithErrorHandler[handler.Context, PreferenceRequest](errHandler),
//	))
//
// JSON responses share one envelope:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": {"code": "not_found", "message": "..."}}
//
// NewErrorHandler maps binder errors, validator.ValidationErrors, HTTPError
// and caller-supplied ErrorMapper results to a status code, logs the
// failure and writes either the JSON envelope or, for browsers, an HTML
// error page rendered with templ.
package handler
