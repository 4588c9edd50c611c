package templates

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayout_Wrap(t *testing.T) {
	t.Parallel()

	l := Layout{Preheader: "Preview", PrimaryColor: "#112233", Footer: SimpleFooter("Acme & Co", 2026, "https://acme.test/u")}
	l.Header = l.TextHeader("Hello <World>")

	out, err := l.Wrap("<p>{{Body}}</p>")
	require.NoError(t, err)
	require.Contains(t, out, "<p>{{Body}}</p>")
	require.Contains(t, out, ">Preview</div>")
	require.Contains(t, out, "color: #112233")
	require.Contains(t, out, "Hello &lt;World&gt;")
	require.Contains(t, out, "&copy; 2026 Acme &amp; Co.")
	require.Contains(t, out, `href="https://acme.test/u"`)
	require.Contains(t, out, "background-color: "+DefaultBackgroundColor)
}

func TestLayout_Defaults(t *testing.T) {
	t.Parallel()

	out, err := Layout{}.Wrap("body")
	require.NoError(t, err)
	require.NotContains(t, out, "display:none")
	require.Contains(t, out, DefaultFontFamily)
	require.Equal(t, DefaultPrimaryColor, Layout{}.Primary())
}

func TestFragments(t *testing.T) {
	t.Parallel()

	require.Contains(t, Heading("Title", 9, ""), "<h4 ")
	require.Contains(t, Heading("Title", 0, "#000"), "<h1 style=\"color: #000; font-size: 28px;")
	require.Equal(t, `<p style="margin: 0 0 15px 0;"><b>x</b></p>`, Paragraph("<b>x</b>"))
	require.Contains(t, LogoHeader("https://acme.test/logo.png", "", 0), `alt="Logo" width="150"`)
	require.Contains(t, Button("Go", "https://acme.test", ""), "background-color: "+DefaultPrimaryColor)
	require.Contains(t, Divider(), "<hr")
}
