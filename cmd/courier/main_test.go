package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/internal/app"
	"github.com/dmitrymomot/courier/pkg/dnsverify"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/mailer"
)

type outbox struct {
	mu   sync.Mutex
	sent []*mailer.Message
}

func (o *outbox) Deliver(_ context.Context, msg *mailer.Message) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return "cli-1", nil
}

// setupEnv points the configuration at a template directory with one
// tenant. It uses t.Setenv, so callers cannot run in parallel.
func setupEnv(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "acme"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme", "Welcome.txt"),
		[]byte("---\nsubject: Hi {{Name}}\npriority: high\n---\nYou have {{Count:N0}} new messages."), 0o600))

	for k, v := range map[string]string{
		"EMAIL_PROVIDER":             "smtp",
		"SMTP_HOST":                  "127.0.0.1",
		"SMTP_FROM_EMAIL":            "relay@acme.test",
		"EMAIL_PROJECT_KEY":          "acme",
		"EMAIL_DEFAULT_SENDER_EMAIL": "noreply@acme.test",
		"TEMPLATES_DIR":              dir,
		"TEMPLATES_BUILTIN":          "false",
		"TEMPLATES_RELOAD_SCHEDULE":  "",
		"DATABASE_URL":               "",
		"REDIS_URL":                  "",
		"ATTACHMENTS_DIR":            "",
		"ATTACHMENTS_S3_BUCKET":      "",
		"LOG_LEVEL":                  "error",
	} {
		t.Setenv(k, v)
	}
}

type zone map[string][]string

func (z zone) LookupTXT(_ context.Context, name string) ([]string, error) {
	if r, ok := z[name]; ok {
		return r, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

var testZone = zone{
	"acme.test":        {"v=spf1 include:_spf.google.com ~all"},
	"_dmarc.acme.test": {"v=DMARC1; p=none"},
	"globex.test":      {"v=spf1 -all"},
}

func run(t *testing.T, box *outbox, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand(cli{resolver: testZone, appOpts: []app.Option{
		app.WithLogger(logger.NewNope()),
		app.WithConnector(mailer.StaticConnector(box)),
	}})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--env-file="}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTemplatesList(t *testing.T) {
	setupEnv(t)

	out, err := run(t, &outbox{}, "templates", "list")
	require.NoError(t, err)
	require.Contains(t, out, "TENANT")
	require.Regexp(t, `acme\s+Welcome\s+high\s+text\s+Name,Count`, out)

	out, err = run(t, &outbox{}, "templates", "list", "--tenant", "other")
	require.NoError(t, err)
	require.NotContains(t, out, "Welcome")
}

func TestTemplatesRender(t *testing.T) {
	setupEnv(t)

	box := &outbox{}
	out, err := run(t, box, "templates", "render",
		"--tenant", "acme", "--template", "Welcome",
		"--data", "Name=Ann", "--data", "Count=1200", "--priority", "low")
	require.NoError(t, err)
	require.Contains(t, out, "From: noreply@acme.test")
	require.Contains(t, out, "Subject: Hi Ann")
	require.Contains(t, out, "Priority: low")
	require.Contains(t, out, "You have 1,200 new messages.")
	require.Empty(t, box.sent)

	_, err = run(t, box, "templates", "render", "--tenant", "acme", "--template", "Missing")
	require.ErrorIs(t, err, mailer.ErrTemplateNotFound)
}

func TestSend(t *testing.T) {
	setupEnv(t)

	box := &outbox{}
	out, err := run(t, box, "send", "--tenant", "acme", "--template", "Welcome", "--to", "ann@x.test,bob@x.test", "--data", "Name=Ann")
	require.NoError(t, err)
	require.Contains(t, out, `"ok": true`)
	require.Contains(t, out, `"message_id": "cli-1"`)
	require.Len(t, box.sent, 1)
	require.Equal(t, []string{"ann@x.test", "bob@x.test"}, box.sent[0].To)
	require.Equal(t, mailer.PriorityHigh, box.sent[0].Priority)

	out, err = run(t, box, "send", "--tenant", "acme", "--template", "Missing", "--to", "ann@x.test")
	require.Error(t, err)
	require.Contains(t, out, `"code": "TemplateNotFound"`)

	_, err = run(t, box, "send", "--tenant", "acme", "--template", "Welcome")
	require.ErrorContains(t, err, "--to")

	_, err = run(t, box, "send", "--tenant", "acme", "--template", "Welcome", "--to", "a@x.test", "--data", "novalue")
	require.ErrorContains(t, err, "key=value")

	_, err = run(t, box, "send", "--template", "Welcome", "--to", "a@x.test")
	require.ErrorContains(t, err, "tenant")
}

func TestVerify(t *testing.T) {
	setupEnv(t)

	out, err := run(t, &outbox{}, "verify")
	require.NoError(t, err)
	require.Equal(t, "provider: ok\n", out)

	out, err = run(t, &outbox{}, "verify", "--domain", "acme.test", "--spf-include", "_spf.google.com")
	require.NoError(t, err)
	require.Contains(t, out, "spf: v=spf1 include:_spf.google.com ~all")
	require.Contains(t, out, "dmarc: v=DMARC1; p=none")

	out, err = run(t, &outbox{}, "verify", "--domain", "globex.test", "--spf-include", "_spf.google.com")
	require.ErrorIs(t, err, dnsverify.ErrSPFIncludeMissing)
	require.ErrorIs(t, err, dnsverify.ErrDMARCNotFound)
	require.Contains(t, out, "dmarc: missing")
}

func TestConfigErrors(t *testing.T) {
	setupEnv(t)
	t.Setenv("EMAIL_PROVIDER", "fax")

	_, err := run(t, &outbox{}, "verify")
	require.ErrorIs(t, err, mailer.ErrInvalidConfiguration)
}

func TestParseData(t *testing.T) {
	t.Parallel()

	m, err := parseData([]string{"Name=Ann", "Count=3", "Total=9.5", "Admin=true", "Expr=a=b", "Empty="})
	require.NoError(t, err)
	require.Equal(t, mailer.Map{
		"Name":  "Ann",
		"Count": int64(3),
		"Total": 9.5,
		"Admin": true,
		"Expr":  "a=b",
		"Empty": "",
	}, m)

	_, err = parseData([]string{"=x"})
	require.Error(t, err)
}
