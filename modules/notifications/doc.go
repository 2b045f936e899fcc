// Package notifications is the HTTP surface of the notification engine.
//
// Handlers are composed with Router. Tenant-scoped routes read the tenant
// from the request context (see pkg/tenant) and the acting user from the
// X-User-ID header set by the upstream gateway:
//
//	POST /send
//	GET  /notifications
//	GET  /notifications/{id}
//	POST /notifications/{id}/read
//	POST /notifications/{id}/action
//	POST /batches/{id}/action
//	GET  /preferences
//	GET  /preferences/{typeId}
//	PUT  /preferences/{typeId}
//	POST /subscribe
//	POST /unsubscribe/{typeId}
//
// Signed action links and provider callbacks are public:
//
//	GET|POST /actions/{type}?token=
//	POST     /webhooks/email
//
// Retries and digest flushes are driven by an external invoker and can be
// guarded with a bearer token:
//
//	POST /notifications/{id}/deliver
//	POST /batches/flush
//	POST /batches/{id}/flush
//
// Domain errors are translated by MapError; NewErrorHandler registers it.
package notifications
