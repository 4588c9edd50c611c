package mailer

import (
	"fmt"
	"strings"
)

// Template is an immutable subject/body pair registered under a TemplateKey.
type Template struct {
	subject  string
	body     string
	priority Priority
	isHTML   bool
}

// TemplateOption configures a Template at construction time.
type TemplateOption func(*Template)

// AsText marks the body as plain text.
func AsText() TemplateOption {
	return func(t *Template) { t.isHTML = false }
}

// AsHTML marks the body as HTML. This is the default.
func AsHTML() TemplateOption {
	return func(t *Template) { t.isHTML = true }
}

// WithDefaultPriority sets the priority used when the caller does not override it.
func WithDefaultPriority(p Priority) TemplateOption {
	return func(t *Template) { t.priority = p }
}

// NewTemplate creates an HTML template with Normal priority unless options
// say otherwise.
func NewTemplate(subject, body string, opts ...TemplateOption) *Template {
	t := &Template{
		subject:  subject,
		body:     body,
		isHTML:   true,
		priority: PriorityNormal,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HTMLTemplate creates an HTML template.
func HTMLTemplate(subject, body string) *Template {
	return NewTemplate(subject, body)
}

// TextTemplate creates a plain text template.
func TextTemplate(subject, body string) *Template {
	return NewTemplate(subject, body, AsText())
}

func (t *Template) Subject() string    { return t.subject }
func (t *Template) Body() string       { return t.body }
func (t *Template) IsHTML() bool       { return t.isHTML }
func (t *Template) Priority() Priority { return t.priority }

// TemplateKey identifies a template inside the registry.
type TemplateKey struct {
	Tenant string
	Type   string
}

// String returns the canonical "<tenant>:<type>" form.
func (k TemplateKey) String() string {
	return k.Tenant + ":" + k.Type
}

// ParseTemplateKey parses the "<tenant>:<type>" form. The string must contain
// exactly one colon and both parts must be non-empty.
func ParseTemplateKey(s string) (TemplateKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TemplateKey{}, fmt.Errorf("%w: template key %q must have the form tenant:type", ErrInvalidArgument, s)
	}
	if isBlank(parts[0]) || isBlank(parts[1]) {
		return TemplateKey{}, fmt.Errorf("%w: template key %q has an empty part", ErrInvalidArgument, s)
	}
	return TemplateKey{Tenant: parts[0], Type: parts[1]}, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
