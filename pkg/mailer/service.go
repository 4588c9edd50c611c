package mailer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/courier/pkg/logger"
)

// Deliverer sends a composed message and returns the provider message id.
// *Client implements it.
type Deliverer interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// Observer is notified about every finished send.
type Observer interface {
	SendCompleted(ctx context.Context, tenant, templateType string, result SendResult, elapsed time.Duration)
}

// Service renders registered templates and delivers them. It never returns
// errors: every outcome is reported as a SendResult.
type Service struct {
	registry       *Registry
	deliverer      Deliverer
	renderer       *Renderer
	logger         *slog.Logger
	observer       Observer
	now            func() time.Time
	tenantDefaults map[string]Defaults
	defaults       Defaults
	mu             sync.RWMutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaults sets the sender defaults used for tenants without their own.
func WithDefaults(d Defaults) ServiceOption {
	return func(s *Service) {
		s.defaults = d
	}
}

// WithTenantDefaults sets the sender defaults of one tenant. Empty fields
// fall back to the global defaults.
func WithTenantDefaults(tenant string, d Defaults) ServiceOption {
	return func(s *Service) {
		s.tenantDefaults[tenant] = d
	}
}

// WithRenderer replaces the default renderer.
func WithRenderer(r *Renderer) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.renderer = r
		}
	}
}

// WithObserver registers an observer notified after every send.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

// WithClock sets the time source used for SentAt.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a service reading templates from registry and
// delivering through deliverer.
func NewService(registry *Registry, deliverer Deliverer, opts ...ServiceOption) *Service {
	s := &Service{
		registry:       registry,
		deliverer:      deliverer,
		renderer:       defaultRenderer,
		logger:         logger.NewNope(),
		now:            time.Now,
		tenantDefaults: make(map[string]Defaults),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry the service reads from.
func (s *Service) Registry() *Registry {
	return s.registry
}

// SetTenantDefaults replaces the sender defaults of a tenant at runtime.
func (s *Service) SetTenantDefaults(tenant string, d Defaults) {
	s.mu.Lock()
	s.tenantDefaults[tenant] = d
	s.mu.Unlock()
}

// DefaultsFor returns the effective sender defaults of a tenant.
func (s *Service) DefaultsFor(tenant string) Defaults {
	s.mu.RLock()
	d, ok := s.tenantDefaults[tenant]
	s.mu.RUnlock()
	if !ok {
		return s.defaults
	}
	return d.Or(s.defaults)
}

// SendTemplate renders the template registered under (tenant, templateType)
// with model and delivers it to the recipients.
func (s *Service) SendTemplate(ctx context.Context, tenant, templateType string, to []string, model any, opts *SendOptions) SendResult {
	started := s.now()
	ctx = logger.WithTenant(ctx, tenant)
	log := s.logger.With(slog.String("template", templateType))

	log.DebugContext(ctx, "sending templated email", slog.Int("recipients", len(to)))

	tpl, ok := s.registry.TryGet(tenant, templateType)
	if !ok {
		err := NewTemplateNotFound(tenant, templateType)
		log.ErrorContext(ctx, "template not found")
		return s.finish(ctx, tenant, templateType, started, FailedFrom(err))
	}

	subject, body := s.renderer.RenderTemplate(tpl, model)
	msg := Compose(to, subject, body, tpl, s.DefaultsFor(tenant), opts)

	return s.deliver(ctx, log, tenant, templateType, started, msg)
}

// Preview renders and composes the message SendTemplate would deliver,
// without delivering it.
func (s *Service) Preview(tenant, templateType string, to []string, model any, opts *SendOptions) (*Message, error) {
	tpl, ok := s.registry.TryGet(tenant, templateType)
	if !ok {
		return nil, NewTemplateNotFound(tenant, templateType)
	}
	subject, body := s.renderer.RenderTemplate(tpl, model)
	return Compose(to, subject, body, tpl, s.DefaultsFor(tenant), opts), nil
}

// SendRaw delivers a caller-built message. Only the tenant sender defaults
// are applied; msg itself is not modified.
func (s *Service) SendRaw(ctx context.Context, tenant string, msg *Message) SendResult {
	started := s.now()
	ctx = logger.WithTenant(ctx, tenant)
	log := s.logger

	if msg == nil {
		return s.finish(ctx, tenant, "", started, FailedFrom(NewSendFailed("Message is required.", ErrInvalidArgument)))
	}

	out := msg.Clone()
	applyDefaults(out, s.DefaultsFor(tenant))

	log.DebugContext(ctx, "sending raw email", slog.Int("recipients", len(out.To)))
	return s.deliver(ctx, log, tenant, "", started, out)
}

func (s *Service) deliver(ctx context.Context, log *slog.Logger, tenant, templateType string, started time.Time, msg *Message) SendResult {
	id, err := s.deliverer.Send(ctx, msg)
	if err != nil {
		result := FailedFrom(err)
		attrs := []any{
			slog.String("code", result.Code()),
			slog.String("error", err.Error()),
		}
		if CodeOf(err).Category() == CodeRateLimitExceeded {
			if ra, ok := RetryAfterOf(err); ok {
				attrs = append(attrs, slog.Duration("retry_after", ra))
			}
			log.WarnContext(ctx, "email rate limited", attrs...)
		} else {
			log.ErrorContext(ctx, "failed to send email", attrs...)
		}
		return s.finish(ctx, tenant, templateType, started, result)
	}

	log.InfoContext(ctx, "email sent",
		slog.String("message_id", id),
		slog.Int("recipients", len(msg.Recipients())),
	)
	return s.finish(ctx, tenant, templateType, started, Succeeded(id, s.now()))
}

func (s *Service) finish(ctx context.Context, tenant, templateType string, started time.Time, result SendResult) SendResult {
	if s.observer != nil {
		s.observer.SendCompleted(ctx, tenant, templateType, result, s.now().Sub(started))
	}
	return result
}
