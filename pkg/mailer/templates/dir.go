package templates

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// Reserved names inside a template directory.
const (
	LayoutsDir   = "layouts"
	DefaultsFile = "_defaults.yaml"
)

// DirSource loads templates from a directory tree:
//
//	layouts/<name>.html          html/template layouts using [[ ]] delimiters
//	<tenant>/_defaults.yaml      optional tenant sender defaults
//	<tenant>/<Type>.md|html|txt  templates with optional YAML frontmatter
//
// The body format follows the file extension unless the frontmatter sets one.
// Markdown templates are sanitised unless the frontmatter disables it.
type DirSource struct {
	fsys fs.FS
	opts []CompilerOption
}

// NewDirSource creates a source reading fsys.
func NewDirSource(fsys fs.FS, opts ...CompilerOption) *DirSource {
	return &DirSource{fsys: fsys, opts: opts}
}

// Load reads and compiles every template in the tree.
func (s *DirSource) Load(ctx context.Context) (*Bundle, error) {
	c := NewCompiler(s.opts...)
	if err := s.loadLayouts(c); err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("templates: read directory: %w", err)
	}

	b := &Bundle{Defaults: make(map[string]mailer.Defaults)}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == LayoutsDir || hidden(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.loadTenant(c, b, entry.Name()); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (s *DirSource) loadLayouts(c *Compiler) error {
	entries, err := fs.ReadDir(s.fsys, LayoutsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("templates: read layouts: %w", err)
	}
	for _, entry := range entries {
		ext := path.Ext(entry.Name())
		if entry.IsDir() || (ext != ".html" && ext != ".htm") {
			continue
		}
		content, err := fs.ReadFile(s.fsys, path.Join(LayoutsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("templates: read layout %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		l, err := ParseLayout(name, content)
		if err != nil {
			return err
		}
		c.AddLayout(name, l)
	}
	return nil
}

func (s *DirSource) loadTenant(c *Compiler, b *Bundle, tenant string) error {
	entries, err := fs.ReadDir(s.fsys, tenant)
	if err != nil {
		return fmt.Errorf("templates: read tenant %s: %w", tenant, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if name == DefaultsFile {
			d, err := s.loadDefaults(path.Join(tenant, name))
			if err != nil {
				return fmt.Errorf("templates: tenant %s: %w", tenant, err)
			}
			b.Defaults[tenant] = d
			continue
		}
		if hidden(name) {
			continue
		}
		ext := path.Ext(name)
		format, ok := formatForExt(ext)
		if !ok {
			continue
		}

		typ := strings.TrimSuffix(name, ext)
		tpl, err := s.compileFile(c, path.Join(tenant, name), format)
		if err != nil {
			return fmt.Errorf("templates: %s:%s: %w", tenant, typ, err)
		}
		b.Entries = append(b.Entries, Entry{Tenant: tenant, Type: typ, Template: tpl})
	}
	return nil
}

func (s *DirSource) compileFile(c *Compiler, name string, format Format) (*mailer.Template, error) {
	content, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(content)
	if err != nil {
		return nil, err
	}
	fm := doc.Frontmatter

	if fm.Format != "" {
		if format, err = ParseFormat(fm.Format); err != nil {
			return nil, err
		}
	}
	priority, err := mailer.ParsePriority(fm.Priority)
	if err != nil {
		return nil, err
	}
	sanitize := format == FormatMarkdown
	if fm.Sanitize != nil {
		sanitize = *fm.Sanitize
	}

	return c.Compile(Definition{
		Subject:   fm.Subject,
		Body:      doc.Body,
		Format:    format,
		Layout:    fm.Layout,
		Preheader: fm.Preheader,
		Priority:  priority,
		Sanitize:  sanitize,
	})
}

func (s *DirSource) loadDefaults(name string) (mailer.Defaults, error) {
	content, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return mailer.Defaults{}, err
	}
	var spec DefaultsSpec
	if err := yaml.Unmarshal(content, &spec); err != nil {
		return mailer.Defaults{}, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, name, err)
	}
	return spec.Defaults()
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
