// Package server exposes the email service over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/courier/internal/store"
	"github.com/dmitrymomot/courier/pkg/attachment"
	"github.com/dmitrymomot/courier/pkg/health"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/mailer"
)

const (
	defaultMaxBodySize       = 1 << 20
	defaultReadHeaderTimeout = 5 * time.Second
	defaultIdleTimeout       = 120 * time.Second
)

// TemplateStore persists templates edited through the API.
type TemplateStore interface {
	Upsert(ctx context.Context, r store.Record) (store.Record, error)
	Delete(ctx context.Context, tenant, templateType string) error
}

// AttachmentResolver turns attachment references into content.
type AttachmentResolver interface {
	Resolve(ctx context.Context, refs []attachment.Ref) ([]mailer.Attachment, error)
}

// Server routes HTTP requests to the email service.
type Server struct {
	service     *mailer.Service
	store       TemplateStore
	attachments AttachmentResolver
	metrics     http.Handler
	logger      *slog.Logger
	checks      health.Checks
	maxBodySize int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore enables template writes. Without a store, templates are
// read-only except for removal from the registry.
func WithStore(ts TemplateStore) Option {
	return func(s *Server) {
		s.store = ts
	}
}

// WithAttachments enables attachment references in send requests.
func WithAttachments(r AttachmentResolver) Option {
	return func(s *Server) {
		s.attachments = r
	}
}

// WithChecks sets the readiness checks.
func WithChecks(c health.Checks) Option {
	return func(s *Server) {
		s.checks = c
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithMaxBodySize limits request bodies. Default: 1 MiB.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// New creates a server for svc.
func New(svc *mailer.Service, opts ...Option) *Server {
	s := &Server{
		service:     svc,
		logger:      logger.NewNope(),
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(s.recoverer)
	r.Use(s.accessLog)

	r.Get("/health/live", health.LivenessHandler())
	r.Get("/health/ready", health.ReadinessHandler(s.checks, health.WithLogger(s.logger)))
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(middleware.RequestSize(s.maxBodySize))

		r.Get("/tenants", s.listTenants)
		r.Route("/tenants/{tenant}", func(r chi.Router) {
			r.Get("/templates", s.listTemplates)
			r.Get("/templates/{type}", s.getTemplate)
			r.Put("/templates/{type}", s.putTemplate)
			r.Delete("/templates/{type}", s.deleteTemplate)
			r.Post("/templates/{type}/send", s.sendTemplate)
			r.Post("/templates/{type}/preview", s.previewTemplate)
			r.Post("/messages", s.sendRaw)
		})
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
