package mailer_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

func TestParsePriority(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]mailer.Priority{
		"":       mailer.PriorityNormal,
		"normal": mailer.PriorityNormal,
		"LOW":    mailer.PriorityLow,
		" High ": mailer.PriorityHigh,
		"urgent": mailer.PriorityUrgent,
	} {
		got, err := mailer.ParsePriority(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := mailer.ParsePriority("asap")
	require.ErrorIs(t, err, mailer.ErrInvalidArgument)
}

func TestPriority_Text(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(map[string]mailer.Priority{"p": mailer.PriorityUrgent})
	require.NoError(t, err)
	require.JSONEq(t, `{"p":"urgent"}`, string(data))

	var out struct {
		P mailer.Priority `json:"p"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"p":"High"}`), &out))
	require.Equal(t, mailer.PriorityHigh, out.P)
	require.Error(t, json.Unmarshal([]byte(`{"p":"nope"}`), &out))
}

func TestHeaders(t *testing.T) {
	t.Parallel()

	var h mailer.Headers
	h.Set("x-campaign", "a")
	h.Set("X-Tags", "t1")
	h.Set("X-CAMPAIGN", "b")
	h.Set("  ", "ignored")

	require.Equal(t, 2, h.Len())
	require.Equal(t, []mailer.Header{
		{Name: "X-Campaign", Value: "b"},
		{Name: "X-Tags", Value: "t1"},
	}, h.All())

	v, ok := h.Get("x-tags")
	require.True(t, ok)
	require.Equal(t, "t1", v)

	other := mailer.NewHeaders(mailer.Header{Name: "X-Tags", Value: "t2"}, mailer.Header{Name: "X-New", Value: "n"})
	h.Merge(other)
	require.Equal(t, map[string]string{"X-Campaign": "b", "X-Tags": "t2", "X-New": "n"}, h.Map())

	clone := h.Clone()
	clone.Del("x-new")
	require.Equal(t, 3, h.Len())
	require.Equal(t, 2, clone.Len())
}

func TestHeaders_RejectsInjection(t *testing.T) {
	t.Parallel()

	names := []struct {
		name  string
		valid bool
	}{
		{name: "X-Campaign", valid: true},
		{name: "x_trace.id~1", valid: true},
		{name: "X-A\r\nBcc", valid: false},
		{name: "X-A:B", valid: false},
		{name: "X A", valid: false},
		{name: "X-Ünicode", valid: false},
		{name: "", valid: false},
	}
	for _, tt := range names {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.valid, mailer.ValidHeaderName(tt.name))

			var h mailer.Headers
			h.Set(tt.name, "v")
			if tt.valid {
				require.Equal(t, 1, h.Len())
			} else {
				require.Zero(t, h.Len())
			}
		})
	}

	var h mailer.Headers
	h.Set("X-Note", "one\r\nBcc: evil@x.test\nmore")
	v, ok := h.Get("X-Note")
	require.True(t, ok)
	require.Equal(t, "one Bcc: evil@x.test more", v)
}

func TestHeaders_JSON(t *testing.T) {
	t.Parallel()

	h := mailer.NewHeaders(mailer.Header{Name: "X-B", Value: "2"}, mailer.Header{Name: "X-A", Value: "1"})
	data, err := json.Marshal(h)
	require.NoError(t, err)
	require.Equal(t, `{"X-B":"2","X-A":"1"}`, string(data))

	var decoded mailer.Headers
	require.NoError(t, json.Unmarshal([]byte(`{"x-z":"last","x-y":"y","X-Z":"wins"}`), &decoded))
	require.Equal(t, []mailer.Header{{Name: "X-Z", Value: "wins"}, {Name: "X-Y", Value: "y"}}, decoded.All())

	require.ErrorIs(t, json.Unmarshal([]byte(`{"X-A\r\nBcc":"evil@x.test"}`), &decoded), mailer.ErrInvalidArgument)
	require.ErrorIs(t, json.Unmarshal([]byte(`{"":"x"}`), &decoded), mailer.ErrInvalidArgument)

	require.NoError(t, json.Unmarshal([]byte(`null`), &decoded))
	require.Zero(t, decoded.Len())
	require.ErrorIs(t, json.Unmarshal([]byte(`["x"]`), &decoded), mailer.ErrInvalidArgument)
}

func TestAttachments(t *testing.T) {
	t.Parallel()

	pdf := mailer.NewAttachment("report.PDF", []byte("%PDF-1.4"))
	require.Equal(t, "application/pdf", pdf.ContentType)
	require.EqualValues(t, 8, pdf.Size())

	sniffed := mailer.NewAttachment("noext", []byte("<html><body>x</body></html>"))
	require.Equal(t, "text/html; charset=utf-8", sniffed.ContentType)

	require.Equal(t, "application/octet-stream", mailer.DetectContentType("", nil))

	img := mailer.InlineImage("logo.png", "logo", []byte{0x89, 'P', 'N', 'G'})
	require.True(t, img.Inline)
	require.Equal(t, "logo", img.ContentID)
	require.Equal(t, "image/png", img.ContentType)
}

func TestMessage_CloneAndRecipients(t *testing.T) {
	t.Parallel()

	msg := &mailer.Message{
		To:          []string{"a@x.test"},
		CC:          []string{"c@x.test"},
		BCC:         []string{"b@x.test"},
		Attachments: []mailer.Attachment{{Filename: "f"}},
		Headers:     mailer.NewHeaders(mailer.Header{Name: "X-A", Value: "1"}),
	}
	require.Equal(t, []string{"a@x.test", "c@x.test", "b@x.test"}, msg.Recipients())

	c := msg.Clone()
	c.To[0] = "changed@x.test"
	c.Headers.Set("X-A", "2")
	c.Attachments[0].Filename = "g"

	require.Equal(t, "a@x.test", msg.To[0])
	v, _ := msg.Headers.Get("X-A")
	require.Equal(t, "1", v)
	require.Equal(t, "f", msg.Attachments[0].Filename)

	var nilMsg *mailer.Message
	require.Nil(t, nilMsg.Clone())
}

func TestDefaults_Or(t *testing.T) {
	t.Parallel()

	global := mailer.Defaults{
		SenderEmail: "global@x.test",
		SenderName:  "Global",
		ReplyTo:     "reply@x.test",
		Headers:     mailer.NewHeaders(mailer.Header{Name: "X-Env", Value: "prod"}, mailer.Header{Name: "X-Tenant", Value: "none"}),
	}
	tenant := mailer.Defaults{
		SenderEmail: "acme@x.test",
		Headers:     mailer.NewHeaders(mailer.Header{Name: "X-Tenant", Value: "acme"}),
	}

	got := tenant.Or(global)
	require.Equal(t, "acme@x.test", got.SenderEmail)
	require.Equal(t, "Global", got.SenderName)
	require.Equal(t, "reply@x.test", got.ReplyTo)
	require.Equal(t, []mailer.Header{{Name: "X-Env", Value: "prod"}, {Name: "X-Tenant", Value: "acme"}}, got.Headers.All())
	require.Equal(t, 2, global.Headers.Len())
}

func TestSendOptionsHelpers(t *testing.T) {
	t.Parallel()

	require.Equal(t, mailer.PriorityHigh, *mailer.HighPriority().Priority)
	require.Equal(t, mailer.PriorityUrgent, *mailer.UrgentPriority().Priority)
	require.Equal(t, mailer.PriorityLow, *mailer.WithPriority(mailer.PriorityLow).Priority)
}
