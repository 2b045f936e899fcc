package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/courier/pkg/logger"
)

// Runner executes fire-and-forget side tasks. Failures and panics are
// logged and never reach the caller; Wait lets shutdown drain what is running.
type Runner struct {
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner bounds every task by timeout. A nil logger discards failures.
func NewRunner(log *slog.Logger, timeout time.Duration) *Runner {
	if log == nil {
		log = logger.Noop()
	}
	return &Runner{log: log, timeout: timeout}
}

// Go starts fn detached from the caller's cancellation but keeping its values
// (request id, tenant) for logging.
func (r *Runner) Go(ctx context.Context, name string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx := context.WithoutCancel(ctx)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		defer func() {
			if p := recover(); p != nil {
				r.log.ErrorContext(ctx, "background task panicked",
					logger.Component(name), logger.Error(fmt.Errorf("%w: %v", ErrPanic, p)))
			}
		}()

		if err := fn(ctx); err != nil {
			r.log.WarnContext(ctx, "background task failed", logger.Component(name), logger.Error(err))
		}
	}()
}

// Wait blocks until all started tasks return or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
