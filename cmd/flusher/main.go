// Command flusher releases due batches on a cron schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/courier/internal/app"
	"github.com/dmitrymomot/courier/pkg/config"
	"github.com/dmitrymomot/courier/pkg/logger"
)

func main() {
	var (
		envFile string
		once    bool
	)
	flag.StringVar(&envFile, "env", "", "optional .env file to load")
	flag.BoolVar(&once, "once", false, "flush due batches once and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, envFile, once); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string, once bool) error {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load[app.Config](files...)
	if err != nil {
		return err
	}

	log := app.NewLogger(cfg, "courier-flusher")
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.BackgroundTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.ErrorContext(closeCtx, "shutdown", logger.Error(err))
		}
	}()

	flush := func() error {
		start := time.Now()
		res, err := a.Flusher.Flush(ctx, start)
		if err != nil {
			log.LogAttrs(ctx, slog.LevelError, "flush failed", logger.Component("flusher"), logger.Error(err))
			return err
		}
		log.LogAttrs(ctx, slog.LevelDebug, "flush complete",
			logger.Component("flusher"),
			slog.Int("flushed", res.Flushed),
			slog.Int("failed", res.Failed),
			slog.Int("skipped", res.Skipped),
			logger.Duration(time.Since(start)),
		)
		return nil
	}

	if once {
		return flush()
	}

	cl := cronLogger{log: log.With(logger.Component("cron"))}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(cfg.FlushSchedule, func() { _ = flush() }); err != nil {
		return fmt.Errorf("flush schedule %q: %w", cfg.FlushSchedule, err)
	}
	c.Start()
	log.LogAttrs(ctx, slog.LevelInfo, "flusher started", slog.String("schedule", cfg.FlushSchedule))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger routes cron's scheduler messages to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, logger.Error(err))...)
}
