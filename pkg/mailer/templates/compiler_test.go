package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatHTML},
		{"HTML", FormatHTML},
		{"txt", FormatText},
		{"text", FormatText},
		{"md", FormatMarkdown},
		{"Markdown", FormatMarkdown},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseFormat("rtf")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestCompiler_Compile(t *testing.T) {
	t.Parallel()

	c := NewCompiler()

	t.Run("html passes through", func(t *testing.T) {
		t.Parallel()

		tpl, err := c.Compile(Definition{Subject: "Hi {{Name}}", Body: "<p>Hello {{Name}}</p>", Priority: mailer.PriorityHigh})
		require.NoError(t, err)
		require.True(t, tpl.IsHTML())
		require.Equal(t, "Hi {{Name}}", tpl.Subject())
		require.Equal(t, "<p>Hello {{Name}}</p>", tpl.Body())
		require.Equal(t, mailer.PriorityHigh, tpl.Priority())
	})

	t.Run("text template", func(t *testing.T) {
		t.Parallel()

		tpl, err := c.Compile(Definition{Subject: "s", Body: "Hello {{Name}}", Format: FormatText})
		require.NoError(t, err)
		require.False(t, tpl.IsHTML())
		require.Equal(t, "Hello {{Name}}", tpl.Body())
	})

	t.Run("text cannot use a layout", func(t *testing.T) {
		t.Parallel()

		_, err := c.Compile(Definition{Body: "x", Format: FormatText, Layout: DefaultLayout})
		require.ErrorIs(t, err, ErrLayout)
	})

	t.Run("markdown keeps placeholders", func(t *testing.T) {
		t.Parallel()

		tpl, err := c.Compile(Definition{
			Subject: "s",
			Body:    "Hello **{{first_name}}**, you owe {{Amount:N2}}.\n\n[Pay]({{PayLink}})\n\n[!button|Open](https://example.com/{{Id}})",
			Format:  FormatMarkdown,
		})
		require.NoError(t, err)
		body := tpl.Body()
		require.Contains(t, body, "<strong>{{first_name}}</strong>")
		require.Contains(t, body, "{{Amount:N2}}")
		require.Contains(t, body, `<a href="{{PayLink}}">Pay</a>`)
		require.Contains(t, body, `href="https://example.com/{{Id}}"`)
		require.NotContains(t, body, "courierph")

		rendered := mailer.Render(body, map[string]any{"PayLink": "https://pay.test/1"})
		require.Contains(t, rendered, `<a href="https://pay.test/1">Pay</a>`)
	})

	t.Run("sanitize strips scripts and keeps placeholder links", func(t *testing.T) {
		t.Parallel()

		tpl, err := c.Compile(Definition{
			Body:     `<p onclick="x()">Hi</p><script>alert(1)</script><a href="{{Link}}">go</a>`,
			Sanitize: true,
		})
		require.NoError(t, err)
		require.NotContains(t, tpl.Body(), "<script>")
		require.NotContains(t, tpl.Body(), "onclick")
		require.Contains(t, tpl.Body(), `href="{{Link}}"`)
	})

	t.Run("default layout wraps", func(t *testing.T) {
		t.Parallel()

		tpl, err := c.Compile(Definition{Body: "<p>{{Name}}</p>", Layout: DefaultLayout, Preheader: "Preview {{Name}}"})
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(tpl.Body(), "<!DOCTYPE html>"))
		require.Contains(t, tpl.Body(), "<p>{{Name}}</p>")
		require.Contains(t, tpl.Body(), "Preview {{Name}}")
	})

	t.Run("unknown layout", func(t *testing.T) {
		t.Parallel()

		_, err := c.Compile(Definition{Body: "x", Layout: "missing"})
		require.ErrorIs(t, err, ErrLayoutNotFound)
	})
}

func TestCompiler_FileLayout(t *testing.T) {
	t.Parallel()

	l, err := ParseLayout("brand", []byte(`<html><body class="[[.Name]]">[[.Content]]</body></html>`))
	require.NoError(t, err)

	c := NewCompiler(WithLayout("brand", l))
	require.True(t, c.HasLayout("brand"))
	require.True(t, c.HasLayout(DefaultLayout))

	tpl, err := c.Compile(Definition{Body: "<p>Hi {{Name}}</p>", Layout: "brand"})
	require.NoError(t, err)
	require.Equal(t, `<html><body class="brand"><p>Hi {{Name}}</p></body></html>`, tpl.Body())

	_, err = ParseLayout("broken", []byte(`[[.Content`))
	require.ErrorIs(t, err, ErrLayout)
}

func TestProtect(t *testing.T) {
	t.Parallel()

	in := "{{A}}{{B:N2}} and {{A}} plus {x} and {{ spaced }}"
	out, restore := protect(in)
	require.NotContains(t, out, "{{A}}")
	require.Contains(t, out, "{{ spaced }}")
	require.Equal(t, in, restore(out))
}
