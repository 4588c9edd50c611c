package templates

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

const testManifest = `
layouts:
  brand:
    primary_color: "#e74c3c"
    header_text: Acme
    footer_company: Acme Inc.
  file:
    file: layouts/plain.html
tenants:
  acme:
    builtin: true
    defaults:
      sender_email: noreply@acme.test
      sender_name: Acme
      headers:
        X-Campaign: welcome
        X-Second: two
    templates:
      Welcome:
        subject: "Welcome, {{Name}}"
        format: markdown
        layout: brand
        priority: high
        body: |
          Hello **{{Name}}**!
      Receipt:
        file: receipt.md
      Plain:
        subject: Plain
        format: text
        body: "Total {{Total:F2}}"
  beta:
    templates:
      Notice:
        subject: Notice
        layout: file
        body: "<p>{{Text}}</p>"
`

func manifestFS() fstest.MapFS {
	return fstest.MapFS{
		"config/courier.yaml":         {Data: []byte(testManifest)},
		"config/layouts/plain.html":   {Data: []byte(`<main>[[.Content]]</main>`)},
		"config/receipt.md":           {Data: []byte("---\nsubject: Receipt {{Number}}\npriority: urgent\n---\nThanks for order {{Number}}\n")},
		"config/unrelated/readme.txt": {Data: []byte("ignored")},
	}
}

func TestManifestSource_Load(t *testing.T) {
	t.Parallel()

	b, err := NewManifestSource(manifestFS(), "config/courier.yaml").Load(context.Background())
	require.NoError(t, err)

	reg := mailer.NewRegistry()
	require.NoError(t, Load(reg, b.Entries))

	require.ElementsMatch(t, []string{"acme", "beta"}, reg.ListTenants())
	require.Len(t, reg.ListTypes("acme"), len(AuthTemplates())+3)

	welcome, err := reg.Get("acme", "Welcome")
	require.NoError(t, err)
	require.True(t, welcome.IsHTML())
	require.Equal(t, mailer.PriorityHigh, welcome.Priority())
	require.Contains(t, welcome.Body(), "<strong>{{Name}}</strong>")
	require.Contains(t, welcome.Body(), "#e74c3c")
	require.Contains(t, welcome.Body(), "Acme Inc.")

	receipt, err := reg.Get("acme", "Receipt")
	require.NoError(t, err)
	require.Equal(t, "Receipt {{Number}}", receipt.Subject())
	require.Equal(t, mailer.PriorityUrgent, receipt.Priority())
	require.Contains(t, receipt.Body(), "<p>Thanks for order {{Number}}</p>")

	plain, err := reg.Get("acme", "Plain")
	require.NoError(t, err)
	require.False(t, plain.IsHTML())
	require.Equal(t, "Total {{Total:F2}}", plain.Body())

	notice, err := reg.Get("beta", "Notice")
	require.NoError(t, err)
	require.Equal(t, "<main><p>{{Text}}</p></main>", notice.Body())

	d := b.Defaults["acme"]
	require.Equal(t, "noreply@acme.test", d.SenderEmail)
	require.Equal(t, "Acme", d.SenderName)
	require.Equal(t, []mailer.Header{
		{Name: "X-Campaign", Value: "welcome"},
		{Name: "X-Second", Value: "two"},
	}, d.Headers.All())
}

func TestManifestSource_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		manifest string
		files    map[string]string
	}{
		{name: "unknown key", manifest: "tenants:\n  a:\n    templaets: {}\n"},
		{name: "body and file", manifest: "tenants:\n  a:\n    templates:\n      T: {body: x, file: t.md}\n"},
		{name: "missing file", manifest: "tenants:\n  a:\n    templates:\n      T: {file: nope.md}\n"},
		{name: "bad priority", manifest: "tenants:\n  a:\n    templates:\n      T: {body: x, priority: asap}\n"},
		{name: "bad format", manifest: "tenants:\n  a:\n    templates:\n      T: {body: x, format: rtf}\n"},
		{name: "headers not a mapping", manifest: "tenants:\n  a:\n    defaults:\n      headers: [a, b]\n"},
		{name: "missing layout file", manifest: "layouts:\n  x: {file: none.html}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fsys := fstest.MapFS{"m.yaml": {Data: []byte(tt.manifest)}}
			_, err := NewManifestSource(fsys, "m.yaml").Load(context.Background())
			require.ErrorIs(t, err, ErrInvalidManifest)
		})
	}

	t.Run("unknown layout", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{"m.yaml": {Data: []byte("tenants:\n  a:\n    templates:\n      T: {body: x, layout: ghost}\n")}}
		_, err := NewManifestSource(fsys, "m.yaml").Load(context.Background())
		require.ErrorIs(t, err, ErrLayoutNotFound)
		require.ErrorIs(t, err, mailer.ErrTemplateRender)

		var merr *mailer.Error
		require.ErrorAs(t, err, &merr)
		require.Equal(t, "a", merr.Tenant)
		require.Equal(t, "T", merr.TemplateType)
		require.Contains(t, err.Error(), "Failed to render template 'T' for project 'a'.")
	})

	t.Run("missing manifest", func(t *testing.T) {
		t.Parallel()

		_, err := NewManifestSource(fstest.MapFS{}, "m.yaml").Load(context.Background())
		require.ErrorIs(t, err, ErrInvalidManifest)
	})
}

func TestParseManifest_Empty(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest(nil)
	require.NoError(t, err)
	require.Empty(t, m.Tenants)
}
