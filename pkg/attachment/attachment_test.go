package attachment_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/attachment"
	"github.com/dmitrymomot/courier/pkg/mailer"
)

type sourceFunc func(ctx context.Context, key string) (mailer.Attachment, error)

func (f sourceFunc) Fetch(ctx context.Context, key string) (mailer.Attachment, error) {
	return f(ctx, key)
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	src := sourceFunc(func(_ context.Context, key string) (mailer.Attachment, error) {
		if key == "missing.txt" {
			return mailer.Attachment{}, attachment.ErrNotFound
		}
		return mailer.NewAttachment(filepath.Base(key), []byte("data:"+key)), nil
	})
	r := attachment.NewResolver(map[string]attachment.Source{"mem": src, "nil": nil})
	ctx := context.Background()

	t.Run("keeps order and applies overrides", func(t *testing.T) {
		t.Parallel()

		got, err := r.Resolve(ctx, []attachment.Ref{
			{Source: "mem", Key: "docs/report.pdf", Filename: "March.pdf"},
			{Source: "mem", Key: "img/logo.png", Inline: true},
			{Source: "mem", Key: "img/banner.png", Inline: true, ContentID: "hero"},
		})
		require.NoError(t, err)
		require.Len(t, got, 3)

		require.Equal(t, "March.pdf", got[0].Filename)
		require.Equal(t, "application/pdf", got[0].ContentType)
		require.False(t, got[0].Inline)

		require.True(t, got[1].Inline)
		require.Equal(t, "logo", got[1].ContentID)
		require.Equal(t, "image/png", got[1].ContentType)

		require.Equal(t, "hero", got[2].ContentID)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		got, err := r.Resolve(ctx, nil)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			ref  attachment.Ref
			want error
		}{
			{name: "unknown source", ref: attachment.Ref{Source: "ftp", Key: "a"}, want: attachment.ErrUnknownSource},
			{name: "nil source skipped", ref: attachment.Ref{Source: "nil", Key: "a"}, want: attachment.ErrUnknownSource},
			{name: "empty key", ref: attachment.Ref{Source: "mem", Key: " "}, want: attachment.ErrEmptyKey},
			{name: "not found", ref: attachment.Ref{Source: "mem", Key: "missing.txt"}, want: attachment.ErrNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				_, err := r.Resolve(ctx, []attachment.Ref{{Source: "mem", Key: "ok.txt"}, tt.ref})
				require.ErrorIs(t, err, tt.want)
			})
		}
	})
}

func TestLocal_Fetch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "invoices"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoices", "march.json"), []byte(`{"total":42}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), []byte(strings.Repeat("x", 64)), 0o600))

	src, err := attachment.NewLocal(dir, 32)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	ctx := context.Background()

	a, err := src.Fetch(ctx, "invoices/march.json")
	require.NoError(t, err)
	require.Equal(t, "march.json", a.Filename)
	require.Equal(t, []byte(`{"total":42}`), a.Content)
	require.Equal(t, "application/json", a.ContentType)

	tests := []struct {
		key  string
		want error
	}{
		{key: "nope.txt", want: attachment.ErrNotFound},
		{key: "invoices", want: attachment.ErrNotFound},
		{key: "big.bin", want: attachment.ErrTooLarge},
		{key: "../outside.txt", want: attachment.ErrAccessDenied},
	}
	for _, tt := range tests {
		_, err := src.Fetch(ctx, tt.key)
		require.ErrorIs(t, err, tt.want, tt.key)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.Fetch(canceled, "invoices/march.json")
	require.True(t, errors.Is(err, context.Canceled))
}

func TestNewLocal_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := attachment.NewLocal(filepath.Join(t.TempDir(), "absent"), 0)
	require.ErrorIs(t, err, attachment.ErrInvalidConfig)
}
