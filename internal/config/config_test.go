package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/internal/config"
	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/mailer/smtp"
)

func parse(t *testing.T, vars map[string]string) (*config.Config, error) {
	t.Helper()
	return config.Parse(env.Options{Environment: vars})
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := parse(t, map[string]string{
		"GMAIL_CREDENTIALS_PATH": "credentials.json",
		"GMAIL_SENDER_EMAIL":     "noreply@acme.test",
	})
	require.NoError(t, err)

	require.Equal(t, config.ProviderGmail, cfg.Provider)
	require.Equal(t, "default", cfg.Email.ProjectKey)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "token.json", cfg.Gmail.TokenPath)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, time.Minute, cfg.Retry.DefaultRetryAfter)
	require.True(t, cfg.Templates.Builtin)
	require.Equal(t, "info", cfg.Log.Level)
	require.False(t, cfg.Database.Enabled())
	require.False(t, cfg.Redis.Enabled())
}

func TestParse_SMTP(t *testing.T) {
	t.Parallel()

	cfg, err := parse(t, map[string]string{
		"EMAIL_PROVIDER":             "smtp",
		"EMAIL_PROJECT_KEY":          "acme_prod-1",
		"EMAIL_DEFAULT_SENDER_EMAIL": "team@acme.test",
		"EMAIL_DEFAULT_SENDER_NAME":  "Acme",
		"SMTP_HOST":                  "mail.acme.test",
		"SMTP_PORT":                  "465",
		"SMTP_TLS_MODE":              "ssl",
		"SMTP_FROM_EMAIL":            "relay@acme.test",
		"REDIS_URL":                  "redis://localhost:6379/0",
	})
	require.NoError(t, err)
	require.Equal(t, smtp.TLSImplicit, cfg.SMTP.TLSMode)
	require.Equal(t, 465, cfg.SMTP.Port)
	require.Equal(t, mailer.Defaults{SenderEmail: "team@acme.test", SenderName: "Acme"}, cfg.Email.Defaults())
	require.True(t, cfg.Redis.Enabled())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := map[string]string{
		"EMAIL_PROVIDER":    "resend",
		"RESEND_API_KEY":    "re_test",
		"RESEND_FROM_EMAIL": "team@acme.test",
	}

	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{name: "empty project key", vars: map[string]string{"EMAIL_PROJECT_KEY": " "}, want: "Project key is required."},
		{name: "long project key", vars: map[string]string{"EMAIL_PROJECT_KEY": strings.Repeat("a", 51)}, want: "at most 50 characters"},
		{name: "bad project key", vars: map[string]string{"EMAIL_PROJECT_KEY": "acme prod"}, want: "letters, digits"},
		{name: "bad sender", vars: map[string]string{"EMAIL_DEFAULT_SENDER_EMAIL": "nope"}, want: "Default sender email"},
		{name: "bad reply-to", vars: map[string]string{"EMAIL_DEFAULT_REPLY_TO": "nope"}, want: "Default reply-to"},
		{name: "unknown provider", vars: map[string]string{"EMAIL_PROVIDER": "ses"}, want: "Email provider must be"},
		{name: "gmail without credentials", vars: map[string]string{"EMAIL_PROVIDER": "gmail"}, want: "CredentialsPath is required."},
		{name: "retry attempts", vars: map[string]string{"EMAIL_RETRY_MAX_ATTEMPTS": "0"}, want: "Retry max attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			vars := make(map[string]string, len(base)+len(tt.vars))
			for k, v := range base {
				vars[k] = v
			}
			for k, v := range tt.vars {
				vars[k] = v
			}

			_, err := parse(t, vars)
			require.ErrorIs(t, err, mailer.ErrInvalidConfiguration)
			require.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := parse(t, base)
	require.NoError(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("EMAIL_PROVIDER=resend\nRESEND_API_KEY=re_file\nRESEND_FROM_EMAIL=file@acme.test\n"), 0o600))

	t.Setenv("RESEND_API_KEY", "re_env")
	t.Setenv("EMAIL_PROVIDER", "")
	require.NoError(t, os.Unsetenv("EMAIL_PROVIDER"))
	t.Setenv("RESEND_FROM_EMAIL", "")
	require.NoError(t, os.Unsetenv("RESEND_FROM_EMAIL"))

	cfg, err := config.Load(filepath.Join(dir, "missing.env"), file)
	require.NoError(t, err)
	require.Equal(t, config.ProviderResend, cfg.Provider)
	require.Equal(t, "re_env", cfg.Resend.APIKey, "environment wins over dotenv")
	require.Equal(t, "file@acme.test", cfg.Resend.SenderEmail)
}
