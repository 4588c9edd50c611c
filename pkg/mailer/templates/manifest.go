package templates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"path"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// Manifest is the YAML description of tenants, their sender defaults and templates.
//
//	layouts:
//	  brand:
//	    primary_color: "#e74c3c"
//	    header_text: Acme
//	    footer_company: Acme Inc.
//	tenants:
//	  acme:
//	    builtin: true
//	    defaults:
//	      sender_email: noreply@acme.test
//	      headers:
//	        X-Campaign: welcome
//	    templates:
//	      Welcome:
//	        subject: "Welcome, {{Name}}"
//	        format: markdown
//	        layout: brand
//	        body: |
//	          Hello **{{Name}}**!
type Manifest struct {
	Layouts map[string]LayoutSpec `yaml:"layouts"`
	Tenants map[string]TenantSpec `yaml:"tenants"`
}

// LayoutSpec describes a layout either as a file or as shell settings.
type LayoutSpec struct {
	File            string `yaml:"file"`
	Preheader       string `yaml:"preheader"`
	HeaderText      string `yaml:"header_text"`
	LogoURL         string `yaml:"logo_url"`
	FooterCompany   string `yaml:"footer_company"`
	UnsubscribeURL  string `yaml:"unsubscribe_url"`
	PrimaryColor    string `yaml:"primary_color"`
	BackgroundColor string `yaml:"background_color"`
	TextColor       string `yaml:"text_color"`
	FontFamily      string `yaml:"font_family"`
}

// TenantSpec describes one tenant.
type TenantSpec struct {
	Templates map[string]TemplateSpec `yaml:"templates"`
	Defaults  DefaultsSpec            `yaml:"defaults"`
	Builtin   bool                    `yaml:"builtin"`
}

// DefaultsSpec holds tenant sender defaults. Headers keep their YAML order.
type DefaultsSpec struct {
	Headers     yaml.Node `yaml:"headers"`
	SenderEmail string    `yaml:"sender_email"`
	SenderName  string    `yaml:"sender_name"`
	ReplyTo     string    `yaml:"reply_to"`
}

// TemplateSpec describes one template. Body and File are mutually exclusive;
// a file may carry frontmatter that fills the fields left empty here.
type TemplateSpec struct {
	Sanitize  *bool  `yaml:"sanitize"`
	Subject   string `yaml:"subject"`
	Body      string `yaml:"body"`
	File      string `yaml:"file"`
	Format    string `yaml:"format"`
	Priority  string `yaml:"priority"`
	Layout    string `yaml:"layout"`
	Preheader string `yaml:"preheader"`
}

// ParseManifest decodes a manifest. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &m, nil
}

// Defaults converts the spec into sender defaults.
func (d DefaultsSpec) Defaults() (mailer.Defaults, error) {
	out := mailer.Defaults{
		SenderEmail: d.SenderEmail,
		SenderName:  d.SenderName,
		ReplyTo:     d.ReplyTo,
	}
	switch d.Headers.Kind {
	case 0:
	case yaml.MappingNode:
		for i := 0; i+1 < len(d.Headers.Content); i += 2 {
			out.Headers.Set(d.Headers.Content[i].Value, d.Headers.Content[i+1].Value)
		}
	default:
		return mailer.Defaults{}, fmt.Errorf("%w: headers must be a mapping", ErrInvalidManifest)
	}
	return out, nil
}

// Layout converts the spec into a shell layout.
func (s LayoutSpec) Layout() Layout {
	l := Layout{
		Preheader:       s.Preheader,
		PrimaryColor:    s.PrimaryColor,
		BackgroundColor: s.BackgroundColor,
		TextColor:       s.TextColor,
		FontFamily:      s.FontFamily,
	}
	switch {
	case s.LogoURL != "":
		l.Header = LogoHeader(s.LogoURL, s.HeaderText, 0)
	case s.HeaderText != "":
		l.Header = l.TextHeader(s.HeaderText)
	}
	if s.FooterCompany != "" || s.UnsubscribeURL != "" {
		l.Footer = SimpleFooter(s.FooterCompany, time.Now().UTC().Year(), s.UnsubscribeURL)
	}
	return l
}

// ManifestSource loads a manifest file from a file system. Paths inside the
// manifest are relative to the manifest's directory.
type ManifestSource struct {
	fsys fs.FS
	name string
	opts []CompilerOption
}

// NewManifestSource creates a source reading name from fsys.
func NewManifestSource(fsys fs.FS, name string, opts ...CompilerOption) *ManifestSource {
	return &ManifestSource{fsys: fsys, name: name, opts: opts}
}

// Load reads and compiles the manifest.
func (s *ManifestSource) Load(ctx context.Context) (*Bundle, error) {
	data, err := fs.ReadFile(s.fsys, s.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return s.compile(ctx, m)
}

func (s *ManifestSource) compile(ctx context.Context, m *Manifest) (*Bundle, error) {
	base := path.Dir(s.name)
	c := NewCompiler(s.opts...)

	for _, name := range sortedKeys(m.Layouts) {
		spec := m.Layouts[name]
		if spec.File == "" {
			c.AddLayout(name, spec.Layout())
			continue
		}
		content, err := fs.ReadFile(s.fsys, path.Join(base, spec.File))
		if err != nil {
			return nil, fmt.Errorf("%w: layout %s: %v", ErrInvalidManifest, name, err)
		}
		l, err := ParseLayout(name, content)
		if err != nil {
			return nil, err
		}
		c.AddLayout(name, l)
	}

	b := &Bundle{Defaults: make(map[string]mailer.Defaults)}
	for _, tenant := range sortedKeys(m.Tenants) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := m.Tenants[tenant]

		d, err := spec.Defaults.Defaults()
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", tenant, err)
		}
		b.Defaults[tenant] = d

		if spec.Builtin {
			auth := AuthTemplates()
			for _, typ := range sortedKeys(auth) {
				b.Entries = append(b.Entries, Entry{Tenant: tenant, Type: typ, Template: auth[typ]})
			}
		}
		for _, typ := range sortedKeys(spec.Templates) {
			def, err := s.definition(base, spec.Templates[typ])
			if err != nil {
				return nil, fmt.Errorf("%w: %s:%s: %v", ErrInvalidManifest, tenant, typ, err)
			}
			tpl, err := c.Compile(def)
			if err != nil {
				return nil, mailer.NewTemplateRenderFailed(tenant, typ, err)
			}
			b.Entries = append(b.Entries, Entry{Tenant: tenant, Type: typ, Template: tpl})
		}
	}
	return b, nil
}

func (s *ManifestSource) definition(base string, spec TemplateSpec) (Definition, error) {
	if spec.Body != "" && spec.File != "" {
		return Definition{}, errors.New("body and file are mutually exclusive")
	}

	body := spec.Body
	if spec.File != "" {
		content, err := fs.ReadFile(s.fsys, path.Join(base, spec.File))
		if err != nil {
			return Definition{}, err
		}
		doc, err := ParseDocument(content)
		if err != nil {
			return Definition{}, err
		}
		body = doc.Body
		fm := doc.Frontmatter
		spec.Subject = firstNonEmpty(spec.Subject, fm.Subject)
		spec.Priority = firstNonEmpty(spec.Priority, fm.Priority)
		spec.Layout = firstNonEmpty(spec.Layout, fm.Layout)
		spec.Preheader = firstNonEmpty(spec.Preheader, fm.Preheader)
		if spec.Format == "" {
			spec.Format = fm.Format
		}
		if spec.Format == "" {
			if f, ok := formatForExt(path.Ext(spec.File)); ok {
				spec.Format = string(f)
			}
		}
		if spec.Sanitize == nil {
			spec.Sanitize = fm.Sanitize
		}
	}

	format, err := ParseFormat(spec.Format)
	if err != nil {
		return Definition{}, err
	}
	priority, err := mailer.ParsePriority(spec.Priority)
	if err != nil {
		return Definition{}, err
	}
	return Definition{
		Subject:   spec.Subject,
		Body:      body,
		Format:    format,
		Layout:    spec.Layout,
		Preheader: spec.Preheader,
		Priority:  priority,
		Sanitize:  spec.Sanitize != nil && *spec.Sanitize,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
