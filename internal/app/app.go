// Package app wires the notification engine from configuration. It is shared
// by the HTTP server and the flush trigger.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/courier/pkg/async"
	"github.com/dmitrymomot/courier/pkg/email"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/pg"
	"github.com/dmitrymomot/courier/pkg/redis"
	"github.com/dmitrymomot/courier/pkg/requestid"
	"github.com/dmitrymomot/courier/pkg/tenant"
	"github.com/dmitrymomot/courier/pkg/webhook"
	"github.com/dmitrymomot/courier/svc/directory"
	"github.com/dmitrymomot/courier/svc/notify"
	"github.com/dmitrymomot/courier/svc/notify/pgstore"
	"github.com/dmitrymomot/courier/svc/notify/redisstore"
	"github.com/dmitrymomot/courier/svc/notify/templates"
)

// App holds the wired engine and the connections it owns.
type App struct {
	Config Config
	Logger *slog.Logger

	Pool  *pgxpool.Pool
	Redis *goredis.Client

	Renderer *templates.Renderer
	Store    *pgstore.Store
	Catalog  *notify.Catalog
	Registry *notify.Registry
	Tokens   *notify.ActionTokenService
	Prefs    *notify.PreferenceService
	Delivery *notify.DeliveryService
	Service  *notify.Service
	Flusher  *notify.Flusher
	Actions  *notify.ActionService
	Runner   *async.Runner
}

// NewLogger builds the process logger for service.
func NewLogger(cfg Config, service string) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(cfg.Env, service),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(requestid.LoggerExtractor(), tenant.LoggerExtractor()),
	)
}

// New connects to storage, applies migrations and wires every service.
// Close releases what New opened, also on partial failure.
func New(ctx context.Context, cfg Config, log *slog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	if a.Pool, err = pg.Connect(ctx, cfg.PG); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.PG.AutoMigrate {
		if err := a.migrate(ctx); err != nil {
			return nil, err
		}
	}
	a.Store = pgstore.New(a.Pool)

	var resolver notify.UserResolver
	if cfg.DirectoryFile != "" {
		if resolver, err = directory.LoadStatic(cfg.DirectoryFile); err != nil {
			return nil, err
		}
	} else {
		resolver = directory.NewPostgres(a.Pool, directory.WithUserCache(cfg.CatalogCache, cfg.CatalogTTL))
	}

	var rendererOpts []templates.Option
	if cfg.TemplatesDir != "" {
		rendererOpts = append(rendererOpts, templates.WithOverrides(os.DirFS(cfg.TemplatesDir), "*.html"))
	}
	if a.Renderer, err = templates.New(rendererOpts...); err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	sender, err := email.New(cfg.Email)
	if err != nil {
		return nil, fmt.Errorf("email provider: %w", err)
	}
	channelOpts := []notify.ChannelOption{
		notify.WithChannelLogger(log),
		notify.WithSendTimeout(cfg.SendTimeout),
	}
	if cfg.SendRate > 0 {
		channelOpts = append(channelOpts, notify.WithRateLimit(cfg.SendRate, cfg.SendBurst))
	}
	if a.Registry, err = notify.NewRegistry(notify.NewEmailChannel(sender, notify.ChannelDeps{
		Resolver:  resolver,
		Addresses: a.Store,
		Renderer:  a.Renderer,
	}, channelOpts...)); err != nil {
		return nil, err
	}

	a.Catalog = notify.NewCatalog(a.Store,
		notify.WithCatalogCache(cfg.CatalogCache, cfg.CatalogTTL),
		notify.WithCatalogChannels(a.Registry),
		notify.WithCatalogLogger(log),
	)
	if cfg.CatalogFile != "" {
		n, err := a.Catalog.SeedFromFile(ctx, cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		log.LogAttrs(ctx, slog.LevelInfo, "catalog seeded", slog.Int("types", n), slog.String("file", cfg.CatalogFile))
	}

	tokenOpts := []notify.TokenOption{
		notify.WithTokenTTL(cfg.TokenTTL),
		notify.WithPreviousSecrets(cfg.PreviousTokenSecrets...),
	}
	if cfg.TokenRevocation {
		if a.Redis, err = redis.Connect(ctx, cfg.Redis); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		tokenOpts = append(tokenOpts, notify.WithRevocationStore(
			redisstore.NewRevocationStore(a.Redis, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix)),
		))
	}
	if a.Tokens, err = notify.NewActionTokenService(cfg.TokenSecret, tokenOpts...); err != nil {
		return nil, fmt.Errorf("action tokens: %w", err)
	}

	a.Prefs = notify.NewPreferenceService(a.Store, a.Catalog, a.Registry, notify.WithPreferenceLogger(log))
	a.Delivery = notify.NewDeliveryService(a.Store, a.Registry, resolver, a.Catalog,
		notify.WithDeliveryLogger(log),
		notify.WithActionTokens(a.Tokens, notify.ActionLinks(cfg.BaseURL)),
		notify.WithFeedbackThresholds(cfg.BounceThreshold, cfg.ComplaintThreshold),
	)
	a.Service = notify.NewService(a.Store, a.Catalog, a.Prefs, resolver, a.Delivery, a.Registry,
		notify.WithServiceLogger(log),
		notify.WithConcurrency(cfg.FanoutConcurrency),
		notify.WithSubscriberTimeout(cfg.SubscriberTimeout),
	)
	a.Flusher = notify.NewFlusher(a.Store, a.Delivery,
		notify.WithFlusherLogger(log),
		notify.WithFlushLimit(cfg.FlushLimit),
		notify.WithDigestLimit(cfg.DigestLimit),
		notify.WithMaxBatchAttempts(cfg.MaxBatchAttempts),
	)

	a.Runner = async.NewRunner(log, cfg.BackgroundTimeout)
	a.Actions = notify.NewActionService(a.Store, a.Tokens, a.Delivery,
		notify.WithActionLogger(log),
		notify.WithBackgroundRunner(a.Runner),
		notify.WithActionStaleAfter(cfg.ActionStaleAfter),
		notify.WithActionHandlers(actionHandlers(cfg, a.Prefs, a.Delivery)...),
	)

	return a, nil
}

func (a *App) migrate(ctx context.Context) error {
	if err := pg.Migrate(ctx, a.Pool, pgstore.Migrations, "migrations", a.Config.PG, a.Logger); err != nil {
		return fmt.Errorf("migrate notifications: %w", err)
	}
	if a.Config.DirectoryFile != "" {
		return nil
	}
	dirCfg := a.Config.PG
	dirCfg.MigrationsTable += "_directory"
	if err := pg.Migrate(ctx, a.Pool, directory.Migrations, "migrations", dirCfg, a.Logger); err != nil {
		return fmt.Errorf("migrate directory: %w", err)
	}
	return nil
}

func actionHandlers(cfg Config, prefs *notify.PreferenceService, delivery *notify.DeliveryService) []notify.ActionHandler {
	handlers := []notify.ActionHandler{
		notify.NewUnsubscribeHandler(prefs),
		notify.NewMarkReadHandler(delivery),
	}
	if len(cfg.ActionWebhooks) == 0 {
		return handlers
	}

	opts := []webhook.Option{webhook.WithMaxRetries(cfg.ActionWebhookRetries)}
	if cfg.ActionWebhookBackoff > 0 {
		opts = append(opts, webhook.WithBackoff(webhook.ExponentialBackoff{
			Initial:    cfg.ActionWebhookBackoff,
			Max:        max(cfg.ActionWebhookBackoffMax, cfg.ActionWebhookBackoff),
			Multiplier: 2,
			Jitter:     0.1,
		}))
	}
	if cfg.ActionWebhookSecret != "" {
		opts = append(opts, webhook.WithSecret(cfg.ActionWebhookSecret))
	}
	sender := webhook.NewSender(opts...)

	actions := make([]string, 0, len(cfg.ActionWebhooks))
	for action := range cfg.ActionWebhooks {
		actions = append(actions, action)
	}
	slices.Sort(actions)
	for _, action := range actions {
		handlers = append(handlers, notify.NewWebhookHandler(action, cfg.ActionWebhooks[action], sender, cfg.ActionWebhookIdempotent))
	}
	return handlers
}

// Close waits for background work and closes connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Runner != nil {
		if err := a.Runner.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait background tasks: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return errors.Join(errs...)
}
