package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// Format is the source format of a template body.
type Format string

// Supported formats.
const (
	FormatHTML     Format = "html"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// ParseFormat parses a format name. An empty name selects html.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html", "htm":
		return FormatHTML, nil
	case "text", "txt", "plain":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// formatForExt maps a file extension to a format.
func formatForExt(ext string) (Format, bool) {
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		return FormatHTML, true
	case ".txt":
		return FormatText, true
	case ".md", ".markdown":
		return FormatMarkdown, true
	}
	return "", false
}

// Definition is an uncompiled template.
type Definition struct {
	Subject   string
	Body      string
	Format    Format
	Layout    string
	Preheader string
	Priority  mailer.Priority
	Sanitize  bool
}

// Wrapper wraps an HTML body into a complete document.
type Wrapper interface {
	Wrap(body string) (string, error)
}

// DefaultLayout is the name of the layout registered on every compiler.
const DefaultLayout = "default"

// Compiler turns definitions into registry templates. Markdown is converted
// with goldmark, HTML is optionally sanitised and wrapped into a layout.
// {{placeholders}} survive every step untouched.
type Compiler struct {
	md      goldmark.Markdown
	policy  *bluemonday.Policy
	layouts map[string]Wrapper
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithButtonColor sets the default colour of markdown buttons.
func WithButtonColor(color string) CompilerOption {
	return func(c *Compiler) {
		c.md = newMarkdown(color)
	}
}

// WithPolicy replaces the sanitising policy.
func WithPolicy(p *bluemonday.Policy) CompilerOption {
	return func(c *Compiler) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithLayout registers a named layout.
func WithLayout(name string, w Wrapper) CompilerOption {
	return func(c *Compiler) {
		if w != nil {
			c.layouts[name] = w
		}
	}
}

// NewCompiler creates a compiler with the default layout and sanitising policy.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{
		md:      newMarkdown(""),
		policy:  EmailPolicy(),
		layouts: map[string]Wrapper{DefaultLayout: Layout{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddLayout registers a named layout after construction.
func (c *Compiler) AddLayout(name string, w Wrapper) {
	c.layouts[name] = w
}

// HasLayout reports whether a layout is registered.
func (c *Compiler) HasLayout(name string) bool {
	_, ok := c.layouts[name]
	return ok
}

func newMarkdown(buttonColor string) goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(NewButtonExtension(buttonColor)),
	)
}

// EmailPolicy returns the sanitising policy used for template HTML. It keeps
// the UGC element set plus the table and inline style attributes email
// layouts rely on, and accepts relative URLs so placeholder links survive.
func EmailPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowRelativeURLs(true)
	p.AllowAttrs("style").Globally()
	p.AllowAttrs("role", "cellpadding", "cellspacing", "width", "align", "border").OnElements("table", "td", "tr", "th")
	p.AllowElements("center", "span", "div")
	return p
}

// Compile converts def into a registry template.
func (c *Compiler) Compile(def Definition) (*mailer.Template, error) {
	format := def.Format
	if format == "" {
		format = FormatHTML
	}

	opts := []mailer.TemplateOption{mailer.WithDefaultPriority(def.Priority)}
	if format == FormatText {
		if def.Layout != "" {
			return nil, fmt.Errorf("%w: layout %q cannot wrap a text template", ErrLayout, def.Layout)
		}
		return mailer.NewTemplate(def.Subject, def.Body, append(opts, mailer.AsText())...), nil
	}

	body, restore := protect(def.Body)
	switch format {
	case FormatMarkdown:
		var buf bytes.Buffer
		if err := c.md.Convert([]byte(body), &buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMarkdown, err)
		}
		body = buf.String()
	case FormatHTML:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if def.Sanitize {
		body = c.policy.Sanitize(body)
	}
	body = restore(body)

	if def.Layout != "" {
		w, ok := c.layouts[def.Layout]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLayoutNotFound, def.Layout)
		}
		if l, ok := w.(Layout); ok && def.Preheader != "" {
			l.Preheader = def.Preheader
			w = l
		}
		wrapped, err := w.Wrap(body)
		if err != nil {
			return nil, err
		}
		body = wrapped
	}

	return mailer.NewTemplate(def.Subject, body, append(opts, mailer.AsHTML())...), nil
}

var placeholderSpan = regexp.MustCompile(`\{\{\w+(?::[^}]+)?\}\}`)

// protect swaps placeholders for inert alphanumeric tokens so markdown and
// sanitising cannot escape or strip them. restore reverses the swap.
func protect(body string) (string, func(string) string) {
	var pairs []string
	out := placeholderSpan.ReplaceAllStringFunc(body, func(m string) string {
		token := "courierph" + strconv.Itoa(len(pairs)/2) + "x"
		pairs = append(pairs, token, m)
		return token
	})
	if len(pairs) == 0 {
		return body, func(s string) string { return s }
	}
	r := strings.NewReplacer(pairs...)
	return out, r.Replace
}

// FileLayout is a layout parsed from an HTML file. The file is an
// html/template using [[ ]] delimiters; the body is available as [[.Content]]
// and the layout name as [[.Name]].
type FileLayout struct {
	tpl  *template.Template
	name string
}

// ParseLayout parses an HTML layout file.
func ParseLayout(name string, content []byte) (*FileLayout, error) {
	tpl, err := template.New(name).Delims("[[", "]]").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLayout, name, err)
	}
	return &FileLayout{tpl: tpl, name: name}, nil
}

// Wrap renders body inside the layout.
func (l *FileLayout) Wrap(body string) (string, error) {
	var buf bytes.Buffer
	data := map[string]any{
		"Content": template.HTML(body),
		"Name":    l.name,
	}
	if err := l.tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrLayout, l.name, err)
	}
	return buf.String(), nil
}
