package mailer

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// placeholderPattern matches {{name}} and {{name:format}}.
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)(?::([^}]+))?\}\}`)

// Model is a named-value lookup presented to the renderer.
// Lookups are expected to ignore case.
type Model interface {
	Lookup(name string) (any, bool)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(name string) (any, bool)

func (f ModelFunc) Lookup(name string) (any, bool) { return f(name) }

// Map is a Model backed by a map. Exact key matches win; otherwise the
// lexically smallest key equal under case folding is used.
type Map map[string]any

func (m Map) Lookup(name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	match, found := "", false
	for k := range m {
		if strings.EqualFold(k, name) && (!found || k < match) {
			match, found = k, true
		}
	}
	if !found {
		return nil, false
	}
	return m[match], true
}

// ModelOf adapts v to a Model. Supported inputs are Model values, maps with
// string keys, structs and pointers to them. It returns nil for nil input
// and for values that expose no named fields.
func ModelOf(v any) Model {
	switch m := v.(type) {
	case nil:
		return nil
	case Model:
		return m
	case map[string]any:
		return Map(m)
	case map[string]string:
		out := make(Map, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return mapModel{v: rv}
		}
	case reflect.Struct:
		return structModel{v: rv}
	}
	return nil
}

type mapModel struct {
	v reflect.Value
}

func (m mapModel) Lookup(name string) (any, bool) {
	keyType := m.v.Type().Key()
	if val := m.v.MapIndex(reflect.ValueOf(name).Convert(keyType)); val.IsValid() {
		return val.Interface(), true
	}

	keys := m.v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int { return strings.Compare(a.String(), b.String()) })
	for _, k := range keys {
		if strings.EqualFold(k.String(), name) {
			return m.v.MapIndex(k).Interface(), true
		}
	}
	return nil, false
}

type structModel struct {
	v reflect.Value
}

func (m structModel) Lookup(name string) (any, bool) {
	t := m.v.Type()
	sf, ok := t.FieldByName(name)
	if !ok {
		sf, ok = t.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
	}
	if !ok || !sf.IsExported() {
		return nil, false
	}
	f, err := m.v.FieldByIndexErr(sf.Index)
	if err != nil {
		// Field lives behind a nil embedded pointer.
		return nil, true
	}
	return f.Interface(), true
}

// SpecFormatter is implemented by values that render custom format
// specifiers themselves.
type SpecFormatter interface {
	FormatSpec(spec string) string
}

// Renderer substitutes placeholders in template strings.
// It is stateless and safe for concurrent use.
type Renderer struct {
	loc  *time.Location
	lang language.Tag
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithLanguage sets the language used for grouped and percent number formats.
// Default: English.
func WithLanguage(tag language.Tag) RendererOption {
	return func(r *Renderer) {
		r.lang = tag
	}
}

// WithLocation converts time values into loc before formatting.
func WithLocation(loc *time.Location) RendererOption {
	return func(r *Renderer) {
		r.loc = loc
	}
}

// NewRenderer creates a renderer.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{lang: language.English}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRenderer = NewRenderer()

// Render substitutes placeholders using the default renderer.
func Render(tpl string, model any) string {
	return defaultRenderer.Render(tpl, model)
}

// RenderTemplate renders the subject and body of t using the default renderer.
func RenderTemplate(t *Template, model any) (subject, body string) {
	return defaultRenderer.RenderTemplate(t, model)
}

// Render replaces every {{name}} and {{name:format}} placeholder whose name
// the model knows. Unknown placeholders are kept verbatim and a nil model
// returns tpl unchanged.
func (r *Renderer) Render(tpl string, model any) string {
	m := ModelOf(model)
	if m == nil || !strings.Contains(tpl, "{{") {
		return tpl
	}

	return placeholderPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		value, ok := m.Lookup(groups[1])
		if !ok {
			return match
		}
		return r.format(value, groups[2])
	})
}

// RenderTemplate renders subject and body of t independently.
func (r *Renderer) RenderTemplate(t *Template, model any) (subject, body string) {
	return r.Render(t.Subject(), model), r.Render(t.Body(), model)
}

// Placeholders returns the distinct placeholder names used in tpl in order
// of first appearance.
func Placeholders(tpl string) []string {
	var names []string
	for _, groups := range placeholderPattern.FindAllStringSubmatch(tpl, -1) {
		if !slices.Contains(names, groups[1]) {
			names = append(names, groups[1])
		}
	}
	return names
}

func (r *Renderer) format(value any, spec string) string {
	if isNilValue(value) {
		return ""
	}
	if f, ok := value.(SpecFormatter); ok && spec != "" {
		return f.FormatSpec(spec)
	}
	value = deref(value)
	if value == nil {
		return ""
	}

	if t, ok := value.(time.Time); ok {
		if r.loc != nil {
			t = t.In(r.loc)
		}
		if spec == "" {
			return t.Format(time.RFC3339)
		}
		return formatTime(t, spec)
	}

	if spec != "" {
		if s, ok := r.formatNumber(value, spec); ok {
			return s
		}
	}
	return stringify(value)
}

var namedLayouts = map[string]string{
	"date":     time.DateOnly,
	"time":     time.TimeOnly,
	"datetime": time.DateTime,
	"rfc3339":  time.RFC3339,
	"rfc1123":  time.RFC1123,
	"rfc822":   time.RFC822,
	"kitchen":  time.Kitchen,
}

func formatTime(t time.Time, spec string) string {
	if layout, ok := namedLayouts[strings.ToLower(spec)]; ok {
		return t.Format(layout)
	}
	return t.Format(spec)
}

// maxPrecision bounds the digits accepted after a numeric code; larger
// values fall back to the default string form.
const maxPrecision = 99

// formatNumber applies printf verbs (e.g. "%05.1f") or the short numeric
// codes N, F, P, D, E and X followed by an optional precision.
func (r *Renderer) formatNumber(value any, spec string) (string, bool) {
	if _, ok := value.(time.Duration); ok {
		return "", false
	}
	i, f, isInt, ok := toNumber(value)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(spec, "%") {
		return fmt.Sprintf(spec, value), true
	}

	code, digits := spec[0], spec[1:]
	precision := -1
	if digits != "" {
		p, err := strconv.Atoi(digits)
		if err != nil || p < 0 || p > maxPrecision {
			return "", false
		}
		precision = p
	}
	withDefault := func(d int) int {
		if precision < 0 {
			return d
		}
		return precision
	}

	switch code {
	case 'N', 'n':
		return message.NewPrinter(r.lang).Sprint(number.Decimal(f, number.Scale(withDefault(2)))), true
	case 'P', 'p':
		return message.NewPrinter(r.lang).Sprint(number.Percent(f, number.Scale(withDefault(2)))), true
	case 'F', 'f':
		return strconv.FormatFloat(f, 'f', withDefault(2), 64), true
	case 'E', 'e':
		return strconv.FormatFloat(f, code, withDefault(6), 64), true
	case 'D', 'd':
		if !isInt {
			return "", false
		}
		return fmt.Sprintf("%0*d", withDefault(0), i), true
	case 'X', 'x':
		if !isInt {
			return "", false
		}
		verb := "%0*x"
		if code == 'X' {
			verb = "%0*X"
		}
		return fmt.Sprintf(verb, withDefault(0), i), true
	}
	return "", false
}

// toNumber reports the integer form of value as an int64 or uint64 so that
// unsigned values above math.MaxInt64 keep their magnitude.
func toNumber(value any) (i any, f float64, isInt, ok bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), float64(rv.Int()), true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), float64(rv.Uint()), true, true
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), rv.Float(), false, true
	}
	return nil, 0, false, false
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	}
	return fmt.Sprint(value)
}

func isNilValue(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func deref(value any) any {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
