package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	requestIDKey
)

// WithTenant returns a context carrying the tenant identifier.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// TenantFromContext returns the tenant stored by WithTenant.
func TenantFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantKey).(string)
	return v, ok && v != ""
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok && v != ""
}

// TenantExtractor adds a "tenant" attribute when the context carries one.
func TenantExtractor() ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if v, ok := TenantFromContext(ctx); ok {
			return slog.String("tenant", v), true
		}
		return slog.Attr{}, false
	}
}

// RequestIDExtractor adds a "request_id" attribute when the context carries one.
func RequestIDExtractor() ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if v, ok := RequestIDFromContext(ctx); ok {
			return slog.String("request_id", v), true
		}
		return slog.Attr{}, false
	}
}

// DefaultExtractors returns the tenant and request id extractors.
func DefaultExtractors() []ContextExtractor {
	return []ContextExtractor{TenantExtractor(), RequestIDExtractor()}
}
