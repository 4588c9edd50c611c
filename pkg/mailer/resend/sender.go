// Package resend delivers mailer messages through the Resend API.
package resend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v3"

	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/mailer/mime"
)

// HeaderTags carries Resend tags as "name=value" pairs separated by commas.
// A name without a value becomes a presence-only tag. The header itself is
// not sent.
const HeaderTags = "X-Tags"

// Sender implements mailer.Transport using the Resend API.
type Sender struct {
	client *resend.Client
	now    func() time.Time
	config Config
}

// Option configures a Sender.
type Option func(*senderOptions)

type senderOptions struct {
	httpClient *http.Client
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *senderOptions) {
		o.httpClient = hc
	}
}

// New creates a new Resend sender.
func New(cfg Config, opts ...Option) (*Sender, error) {
	o := senderOptions{httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := *o.httpClient
	hc.Transport = statusRecorder{next: base}

	client := resend.NewCustomClient(&hc, cfg.APIKey)
	if cfg.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, mailer.NewInvalidConfiguration("Resend base URL is invalid: " + err.Error())
		}
		client.BaseURL = u
	}

	return &Sender{client: client, now: time.Now, config: cfg}, nil
}

// Connector returns a connector that always yields s.
func (s *Sender) Connector() mailer.Connector {
	return mailer.StaticConnector(s)
}

// Deliver implements mailer.Transport.
func (s *Sender) Deliver(ctx context.Context, msg *mailer.Message) (string, error) {
	if msg == nil {
		return "", mailer.ErrInvalidArgument
	}
	out := msg.Clone()
	if out.From == "" {
		out.From = s.config.SenderEmail
		if out.FromName == "" {
			out.FromName = s.config.SenderName
		}
	}
	if err := mime.Validate(out); err != nil {
		return "", err
	}

	from := out.From
	if out.FromName != "" {
		from = fmt.Sprintf("%s <%s>", out.FromName, out.From)
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      out.To,
		Subject: out.Subject,
		ReplyTo: out.ReplyTo,
		Cc:      out.CC,
		Bcc:     out.BCC,
	}
	if out.IsHTML {
		req.Html = out.Body
	} else {
		req.Text = out.Body
	}

	headers, tags := splitHeaders(out)
	if len(headers) > 0 {
		req.Headers = headers
	}
	if len(tags) > 0 {
		req.Tags = tags
	}
	if len(out.Attachments) > 0 {
		req.Attachments = convertAttachments(out.Attachments)
	}

	rec := &recorded{}
	resp, err := s.client.Emails.SendWithContext(context.WithValue(ctx, recordedKey{}, rec), req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if rec.status == 0 {
			return "", fmt.Errorf("resend: failed to send email: %w", err)
		}
		return "", &mailer.ProviderError{
			StatusCode: rec.status,
			Message:    err.Error(),
			RetryAfter: mailer.ParseRetryAfter(rec.retryAfter, s.now()),
		}
	}
	return resp.Id, nil
}

// splitHeaders returns the custom headers including priority headers, with
// the tag header turned into Resend tags.
func splitHeaders(msg *mailer.Message) (map[string]string, []resend.Tag) {
	headers := make(map[string]string)
	for name, value := range mime.PriorityHeaders(msg.Priority) {
		headers[name] = value
	}

	var tags []resend.Tag
	for _, h := range msg.Headers.All() {
		if h.Name == HeaderTags {
			tags = append(tags, parseTags(h.Value)...)
			continue
		}
		headers[h.Name] = h.Value
	}
	return headers, tags
}

func parseTags(v string) []resend.Tag {
	var tags []resend.Tag
	for part := range strings.SplitSeq(v, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !ok {
			value = "true" // presence-only tag
		}
		tags = append(tags, resend.Tag{Name: name, Value: strings.TrimSpace(value)})
	}
	return tags
}

func convertAttachments(attachments []mailer.Attachment) []*resend.Attachment {
	result := make([]*resend.Attachment, len(attachments))
	for i, a := range attachments {
		result[i] = &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
			ContentId:   a.ContentID,
		}
	}
	return result
}

type recordedKey struct{}

// recorded captures the status of the API response, which the Resend
// client does not expose on errors.
type recorded struct {
	retryAfter string
	status     int
}

type statusRecorder struct {
	next http.RoundTripper
}

func (t statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if rec, ok := req.Context().Value(recordedKey{}).(*recorded); ok {
		rec.status = resp.StatusCode
		rec.retryAfter = resp.Header.Get("Retry-After")
	}
	return resp, nil
}
