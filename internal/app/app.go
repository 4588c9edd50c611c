// Package app assembles the courier service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/courier/internal/config"
	"github.com/dmitrymomot/courier/internal/server"
	"github.com/dmitrymomot/courier/internal/store"
	"github.com/dmitrymomot/courier/pkg/attachment"
	"github.com/dmitrymomot/courier/pkg/cooldown"
	"github.com/dmitrymomot/courier/pkg/health"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/mailer/gmail"
	"github.com/dmitrymomot/courier/pkg/mailer/resend"
	"github.com/dmitrymomot/courier/pkg/mailer/smtp"
	"github.com/dmitrymomot/courier/pkg/mailer/templates"
	"github.com/dmitrymomot/courier/pkg/metrics"
	"github.com/dmitrymomot/courier/pkg/redis"
)

const (
	defaultReloadTimeout  = 30 * time.Second
	providerCheckInterval = time.Minute
)

// App owns every long-lived component of the service.
type App struct {
	cfg         *config.Config
	logger      *slog.Logger
	registry    *mailer.Registry
	client      *mailer.Client
	service     *mailer.Service
	store       *store.Store
	attachments *attachment.Resolver
	metrics     *prometheus.Registry
	checks      health.Checks
	sources     []templates.Source
	cron        *cron.Cron
	closers     []func() error
	closeOnce   sync.Once
}

// Option configures an App.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	connector mailer.Connector
}

// WithLogger sets the logger. Default: built from the log configuration.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithConnector replaces the configured provider.
func WithConnector(c mailer.Connector) Option {
	return func(o *options) {
		o.connector = c
	}
}

// New builds the application and loads the templates once. Close releases
// whatever New opened, also when New fails halfway.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		var err error
		log, err = logger.NewFromConfig(cfg.Log, os.Stdout, logger.DefaultExtractors()...)
		if err != nil {
			return nil, fmt.Errorf("app: logger: %w", err)
		}
	}

	a := &App{
		cfg:      cfg,
		logger:   log,
		registry: mailer.NewRegistry(),
		metrics:  prometheus.NewRegistry(),
		checks:   health.Checks{},
	}
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.build(ctx, o.connector); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

func (a *App) build(ctx context.Context, conn mailer.Connector) error {
	cd, err := a.openCooldown(ctx)
	if err != nil {
		return err
	}
	if err := a.openStore(ctx); err != nil {
		return err
	}
	if err := a.openAttachments(); err != nil {
		return err
	}

	if conn == nil {
		if conn, err = newConnector(a.cfg, a.logger); err != nil {
			return err
		}
	}

	collector := metrics.New(a.metrics)
	a.client = mailer.NewClient(conn,
		mailer.WithName(a.cfg.Provider),
		mailer.WithMaxAttempts(a.cfg.Retry.MaxAttempts),
		mailer.WithBaseDelay(a.cfg.Retry.BaseDelay),
		mailer.WithDefaultRetryAfter(a.cfg.Retry.DefaultRetryAfter),
		mailer.WithClientLogger(a.logger),
		mailer.WithCooldown(cd),
		mailer.WithAttemptObserver(collector),
	)
	a.service = mailer.NewService(a.registry, a.client,
		mailer.WithLogger(a.logger),
		mailer.WithDefaults(a.cfg.Email.Defaults()),
		mailer.WithObserver(collector),
	)
	a.checks["provider"] = health.Cached(a.client.Verify, providerCheckInterval)

	a.sources = a.templateSources()
	if err := a.Reload(ctx); err != nil {
		return err
	}
	return a.schedule()
}

func (a *App) openCooldown(ctx context.Context) (mailer.Cooldown, error) {
	if !a.cfg.Redis.Enabled() {
		mem := cooldown.NewMemory()
		a.closers = append(a.closers, mem.Close)
		return mem, nil
	}

	client, err := redis.Open(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.checks["redis"] = redis.Healthcheck(client)
	return cooldown.NewRedis(client, cooldown.WithPrefix(a.cfg.Redis.Prefix)), nil
}

func (a *App) openStore(ctx context.Context) error {
	if !a.cfg.Database.Enabled() {
		return nil
	}

	pool, err := store.Connect(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	a.checks["postgres"] = store.Healthcheck(pool)

	if a.cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx, pool, a.cfg.Database.MigrationsTable, a.logger); err != nil {
			return err
		}
	}
	a.store = store.New(pool)
	return nil
}

func (a *App) openAttachments() error {
	sources := make(map[string]attachment.Source)

	if a.cfg.Attachments.S3.Enabled() {
		s3, err := attachment.NewS3(a.cfg.Attachments.S3)
		if err != nil {
			return err
		}
		sources["s3"] = s3
	}
	if dir := a.cfg.Attachments.Dir; dir != "" {
		local, err := attachment.NewLocal(dir, a.cfg.Attachments.S3.MaxSize)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, local.Close)
		sources["file"] = local
	}

	if len(sources) > 0 {
		a.attachments = attachment.NewResolver(sources)
	}
	return nil
}

func (a *App) templateSources() []templates.Source {
	cfg := a.cfg.Templates
	copts := []templates.CompilerOption{templates.WithButtonColor(cfg.ButtonColor)}

	var sources []templates.Source
	if cfg.Builtin {
		sources = append(sources, templates.Builtin(a.cfg.Email.ProjectKey))
	}
	if cfg.Manifest != "" {
		dir, name := filepath.Split(cfg.Manifest)
		if dir == "" {
			dir = "."
		}
		sources = append(sources, templates.NewManifestSource(os.DirFS(dir), name, copts...))
	}
	if cfg.Dir != "" {
		sources = append(sources, templates.NewDirSource(os.DirFS(cfg.Dir), copts...))
	}
	if a.store != nil {
		sources = append(sources, a.store)
	}
	return sources
}

func (a *App) schedule() error {
	expr := a.cfg.Templates.ReloadSchedule
	if expr == "" {
		return nil
	}

	a.cron = cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
	_, err := a.cron.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultReloadTimeout)
		defer cancel()
		if err := a.Reload(ctx); err != nil {
			a.logger.ErrorContext(ctx, "scheduled template reload failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return mailer.NewInvalidConfiguration(fmt.Sprintf("Template reload schedule %q is invalid: %v", expr, err))
	}
	return nil
}

// Reload loads every template source and swaps the result into the registry
// tenant by tenant. Sender defaults found in the sources replace the tenant
// defaults. On error the registry is left as it was.
func (a *App) Reload(ctx context.Context) error {
	b, err := templates.Collect(ctx, a.sources...)
	if err != nil {
		return err
	}
	if err := templates.Apply(a.registry, b); err != nil {
		return err
	}
	for tenant, d := range b.Defaults {
		a.service.SetTenantDefaults(tenant, d)
	}

	a.logger.InfoContext(ctx, "templates loaded",
		slog.Int("templates", a.registry.Len()),
		slog.Int("tenants", len(a.registry.ListTenants())),
	)
	return nil
}

// Service returns the email service.
func (a *App) Service() *mailer.Service { return a.service }

// Client returns the provider client.
func (a *App) Client() *mailer.Client { return a.client }

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Checks returns the readiness checks of the opened dependencies.
func (a *App) Checks() health.Checks { return a.checks }

// MetricsHandler serves the application metrics.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{Registry: a.metrics})
}

// Server builds the HTTP server over the service.
func (a *App) Server() *server.Server {
	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithChecks(a.checks),
		server.WithMetrics(a.MetricsHandler()),
		server.WithMaxBodySize(a.cfg.Server.MaxBodySize),
	}
	if a.store != nil {
		opts = append(opts, server.WithStore(a.store))
	}
	if a.attachments != nil {
		opts = append(opts, server.WithAttachments(a.attachments))
	}
	return server.New(a.service, opts...)
}

// Run serves HTTP and runs the reload schedule until ctx is done, then
// releases every resource.
func (a *App) Run(ctx context.Context) error {
	if a.cron != nil {
		a.cron.Start()
	}

	s := a.cfg.Server
	err := a.Server().Run(ctx, s.Addr, s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout)
	return errors.Join(err, a.Close())
}

// Close stops the schedule and closes connections in reverse order of
// opening. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.cron != nil {
			<-a.cron.Stop().Done()
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			a.logger.Error("shutdown completed with errors", slog.Any("error", errors.Join(errs...)))
		}
	})
	return errors.Join(errs...)
}

func newConnector(cfg *config.Config, log *slog.Logger) (mailer.Connector, error) {
	switch cfg.Provider {
	case config.ProviderGmail:
		return gmail.NewConnector(cfg.Gmail, gmail.WithLogger(log)), nil
	case config.ProviderResend:
		s, err := resend.New(cfg.Resend)
		if err != nil {
			return nil, err
		}
		return s.Connector(), nil
	case config.ProviderSMTP:
		return smtp.New(cfg.SMTP, smtp.WithLogger(log)).Connector(), nil
	}
	return nil, mailer.NewInvalidConfiguration(fmt.Sprintf("Unknown email provider %q.", cfg.Provider))
}
