package templates

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
)

func convert(t *testing.T, color, source string) string {
	t.Helper()

	md := goldmark.New(goldmark.WithExtensions(NewButtonExtension(color)))
	var buf bytes.Buffer
	require.NoError(t, md.Convert([]byte(source), &buf))
	return buf.String()
}

func TestButtonExtension_RendersButton(t *testing.T) {
	t.Parallel()

	result := convert(t, "", `[!button|Click Me](https://example.com)`)

	require.Contains(t, result, `<a href="https://example.com"`)
	require.Contains(t, result, `>Click Me</a>`)
	require.Contains(t, result, `<table role="presentation"`)
	require.Contains(t, result, "background-color: "+DefaultPrimaryColor)
}

func TestButtonExtension_Colors(t *testing.T) {
	t.Parallel()

	t.Run("extension default", func(t *testing.T) {
		t.Parallel()
		result := convert(t, "#ff0000", `[!button|Go](https://example.com)`)
		require.Contains(t, result, "background-color: #ff0000")
	})

	t.Run("inline colour wins", func(t *testing.T) {
		t.Parallel()
		result := convert(t, "#ff0000", `[!button:#0a0|Go](https://example.com)`)
		require.Contains(t, result, "background-color: #0a0")
		require.NotContains(t, result, "#ff0000")
	})

	t.Run("invalid colour is not a button", func(t *testing.T) {
		t.Parallel()
		result := convert(t, "", `[!button:red|Go](https://example.com)`)
		require.NotContains(t, result, `<table role="presentation"`)
	})
}

func TestButtonExtension_EscapesHTML(t *testing.T) {
	t.Parallel()

	result := convert(t, "", `[!button|<script>alert("xss")</script>](https://example.com)`)

	require.NotContains(t, result, "<script>")
	require.Contains(t, result, "&lt;script&gt;")
}

func TestButtonExtension_WithMarkdownSurrounding(t *testing.T) {
	t.Parallel()

	result := convert(t, "", `# Welcome

Please verify your email:

[!button|Verify Email](https://example.com/verify)

Thank you!`)

	require.Contains(t, result, "<h1>Welcome</h1>")
	require.Contains(t, result, `<a href="https://example.com/verify"`)
	require.Contains(t, result, ">Verify Email</a>")
	require.Contains(t, result, "Thank you!")
}

func TestButtonExtension_MultipleButtons(t *testing.T) {
	t.Parallel()

	result := convert(t, "", `[!button|Accept](https://example.com/accept)
[!button|Decline](https://example.com/decline)`)

	require.Contains(t, result, `<a href="https://example.com/accept"`)
	require.Contains(t, result, `<a href="https://example.com/decline"`)
}

func TestButtonExtension_IgnoresRegularLinks(t *testing.T) {
	t.Parallel()

	result := convert(t, "", `[Regular Link](https://example.com)`)

	require.NotContains(t, result, `<table role="presentation"`)
	require.Contains(t, result, `<a href="https://example.com">Regular Link</a>`)
}

func TestButtonExtension_IgnoresIncompleteButton(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
	}{
		{name: "missing URL", source: `[!button|Click Me]`},
		{name: "missing closing bracket", source: `[!button|Click Me(https://example.com)`},
		{name: "wrong prefix", source: `[button|Click Me](https://example.com)`},
		{name: "missing separator", source: `[!button Click Me](https://example.com)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.NotContains(t, convert(t, "", tt.source), `<table role="presentation"`)
		})
	}
}

func TestButtonExtension_SpecialCharacters(t *testing.T) {
	t.Parallel()

	result := convert(t, "", `[!button|Accept & Continue](https://example.com/verify?token=abc123&user=john)`)

	require.Contains(t, result, "Accept &amp; Continue")
	require.Contains(t, result, "token=abc123")
}

func TestButtonNode_Kind(t *testing.T) {
	t.Parallel()

	node := &ButtonNode{URL: []byte("https://example.com"), Label: []byte("Test")}
	require.Equal(t, KindButton, node.Kind())
	require.NotPanics(t, func() {
		node.Dump([]byte("source"), 0)
	})
}
