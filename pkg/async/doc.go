// Package async runs fire-and-forget tasks outside the request path. A
// failing task must not affect the caller: errors and panics are logged, and
// Wait drains tasks during shutdown.
//
//	runner := async.NewRunner(log, 5*time.Second)
//	runner.Go(ctx, "mark_read", func(ctx context.Context) error { return svc.MarkRead(ctx, id) })
package async
