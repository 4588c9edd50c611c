package templates

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// Entry is a compiled template bound to its registry key.
type Entry struct {
	Template *mailer.Template
	Tenant   string
	Type     string
}

// Key returns the registry key of the entry.
func (e Entry) Key() mailer.TemplateKey {
	return mailer.TemplateKey{Tenant: e.Tenant, Type: e.Type}
}

// Bundle is the result of loading a source: templates plus the sender
// defaults of the tenants it describes.
type Bundle struct {
	Defaults map[string]mailer.Defaults
	Entries  []Entry
}

// Tenants returns the tenants that own at least one entry, in first-seen order.
func (b *Bundle) Tenants() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range b.Entries {
		if _, ok := seen[e.Tenant]; ok {
			continue
		}
		seen[e.Tenant] = struct{}{}
		out = append(out, e.Tenant)
	}
	return out
}

// Source produces template bundles.
type Source interface {
	Load(ctx context.Context) (*Bundle, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Bundle, error)

func (f SourceFunc) Load(ctx context.Context) (*Bundle, error) { return f(ctx) }

// Builtin returns a source with the authentication templates for each tenant.
func Builtin(tenants ...string) Source {
	return SourceFunc(func(context.Context) (*Bundle, error) {
		b := &Bundle{}
		for _, tenant := range tenants {
			for typ, tpl := range AuthTemplates() {
				b.Entries = append(b.Entries, Entry{Tenant: tenant, Type: typ, Template: tpl})
			}
		}
		return b, nil
	})
}

// Collect loads every source in order and merges the results. Later sources
// override entries and defaults of earlier ones.
func Collect(ctx context.Context, sources ...Source) (*Bundle, error) {
	out := &Bundle{Defaults: make(map[string]mailer.Defaults)}
	index := make(map[mailer.TemplateKey]int)

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("templates: source %d: %w", i, err)
		}
		if b == nil {
			continue
		}
		for _, e := range b.Entries {
			if at, ok := index[e.Key()]; ok {
				out.Entries[at] = e
				continue
			}
			index[e.Key()] = len(out.Entries)
			out.Entries = append(out.Entries, e)
		}
		for tenant, d := range b.Defaults {
			out.Defaults[tenant] = d
		}
	}
	return out, nil
}

// Load registers entries in order; later entries replace earlier ones with
// the same key.
func Load(reg *mailer.Registry, entries []Entry) error {
	for _, e := range entries {
		if err := reg.Register(e.Tenant, e.Type, e.Template); err != nil {
			return fmt.Errorf("templates: register %s: %w", e.Key(), err)
		}
	}
	return nil
}

// Apply replaces the templates of every tenant in b. Each tenant is swapped
// atomically, so readers never observe a half-loaded tenant. Tenants absent
// from b are left untouched.
func Apply(reg *mailer.Registry, b *Bundle) error {
	grouped := make(map[string]map[string]*mailer.Template)
	for _, e := range b.Entries {
		if e.Template == nil {
			return fmt.Errorf("templates: register %s: %w", e.Key(), mailer.ErrInvalidArgument)
		}
		m, ok := grouped[e.Tenant]
		if !ok {
			m = make(map[string]*mailer.Template)
			grouped[e.Tenant] = m
		}
		m[e.Type] = e.Template
	}
	for _, tenant := range b.Tenants() {
		if err := reg.Replace(tenant, grouped[tenant]); err != nil {
			return fmt.Errorf("templates: replace %s: %w", tenant, err)
		}
	}
	return nil
}
