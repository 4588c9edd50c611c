package mailer

import (
	"fmt"
	"sync"
)

// Registry stores templates per tenant. It is safe for concurrent use.
type Registry struct {
	templates map[TemplateKey]*Template
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[TemplateKey]*Template)}
}

// Register stores tpl under (tenant, templateType), replacing any existing entry.
func (r *Registry) Register(tenant, templateType string, tpl *Template) error {
	if isBlank(tenant) {
		return fmt.Errorf("%w: tenant is required", ErrInvalidArgument)
	}
	if isBlank(templateType) {
		return fmt.Errorf("%w: template type is required", ErrInvalidArgument)
	}
	if tpl == nil {
		return fmt.Errorf("%w: template is nil", ErrInvalidArgument)
	}

	r.mu.Lock()
	r.templates[TemplateKey{Tenant: tenant, Type: templateType}] = tpl
	r.mu.Unlock()
	return nil
}

// Get returns the template or a TemplateNotFound error.
func (r *Registry) Get(tenant, templateType string) (*Template, error) {
	tpl, ok := r.TryGet(tenant, templateType)
	if !ok {
		return nil, NewTemplateNotFound(tenant, templateType)
	}
	return tpl, nil
}

// TryGet returns the template and whether it was found.
func (r *Registry) TryGet(tenant, templateType string) (*Template, bool) {
	r.mu.RLock()
	tpl, ok := r.templates[TemplateKey{Tenant: tenant, Type: templateType}]
	r.mu.RUnlock()
	return tpl, ok
}

// Has reports whether a template is registered.
func (r *Registry) Has(tenant, templateType string) bool {
	_, ok := r.TryGet(tenant, templateType)
	return ok
}

// Remove deletes a template and reports whether it existed.
func (r *Registry) Remove(tenant, templateType string) bool {
	key := TemplateKey{Tenant: tenant, Type: templateType}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[key]; !ok {
		return false
	}
	delete(r.templates, key)
	return true
}

// ListTenants returns the distinct tenants with at least one template.
// Order is unspecified.
func (r *Registry) ListTenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	tenants := make([]string, 0)
	for key := range r.templates {
		if _, ok := seen[key.Tenant]; ok {
			continue
		}
		seen[key.Tenant] = struct{}{}
		tenants = append(tenants, key.Tenant)
	}
	return tenants
}

// ListTypes returns the template types registered for tenant.
// Order is unspecified.
func (r *Registry) ListTypes(tenant string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0)
	for key := range r.templates {
		if key.Tenant == tenant {
			types = append(types, key.Type)
		}
	}
	return types
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

// Replace swaps the content of a tenant for the given set in one step.
// Readers never observe a partially loaded tenant.
func (r *Registry) Replace(tenant string, templates map[string]*Template) error {
	if isBlank(tenant) {
		return fmt.Errorf("%w: tenant is required", ErrInvalidArgument)
	}
	for typ, tpl := range templates {
		if isBlank(typ) || tpl == nil {
			return fmt.Errorf("%w: invalid template %q for tenant %q", ErrInvalidArgument, typ, tenant)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.templates {
		if key.Tenant == tenant {
			delete(r.templates, key)
		}
	}
	for typ, tpl := range templates {
		r.templates[TemplateKey{Tenant: tenant, Type: typ}] = tpl
	}
	return nil
}
