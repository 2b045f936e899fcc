// Command courier serves the notification HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/courier/handler"
	"github.com/dmitrymomot/courier/internal/app"
	"github.com/dmitrymomot/courier/modules/notifications"
	"github.com/dmitrymomot/courier/pkg/config"
	"github.com/dmitrymomot/courier/pkg/httpserver"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/pkg/redis"
	"github.com/dmitrymomot/courier/pkg/requestid"
	"github.com/dmitrymomot/courier/pkg/tenant"
)

func main() {
	var envFile string
	flag.StringVar(&envFile, "env", "", "optional .env file to load")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, envFile); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string) error {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load[app.Config](files...)
	if err != nil {
		return err
	}

	log := app.NewLogger(cfg, "courier")
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

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
	return srv.Run(ctx, routes(a))
}

func routes(a *app.App) chi.Router {
	eh := notifications.NewErrorHandler(a.Logger, handler.WithErrorPage(func(p handler.ErrorPageParams) templ.Component {
		return a.Renderer.ActionResult(p.Title, p.Message)
	}))

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(a.Pool)}}
	if a.Redis != nil {
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(a.Redis)})
	}

	opts := notifications.RouterOptions{
		Notifications:   notifications.NewNotificationsHandler(a.Service, a.Delivery, a.Actions, eh),
		Batches:         notifications.NewBatchesHandler(a.Actions, eh),
		Preferences:     notifications.NewPreferencesHandler(a.Prefs, eh),
		Actions:         notifications.NewActionLinksHandler(a.Actions, a.Renderer, eh),
		Operations:      notifications.NewOperationsHandler(a.Delivery, a.Flusher, eh),
		OperationsToken: a.Config.OperationsToken,
	}
	if a.Config.EmailWebhookSecret != "" {
		opts.Webhooks = notifications.NewWebhooksHandler(a.Delivery, a.Config.EmailWebhookSecret, eh,
			notifications.WithSignatureMaxAge(a.Config.EmailWebhookMaxAge),
			notifications.WithWebhookLogger(a.Logger),
		)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, requestid.Middleware)
	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(a.Logger, 3*time.Second, checks...))
	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(tenant.NewHeaderResolver("")))
		r.Mount("/", notifications.Router(opts))
	})
	return r
}
