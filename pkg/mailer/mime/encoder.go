// Package mime encodes mailer messages as RFC 5322 documents.
//
// The encoder validates addresses and size limits before producing any
// output, so providers that need a raw message (Gmail) or a gomail message
// (SMTP) report the same taxonomy errors.
package mime

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// Size limits.
const (
	DefaultMaxAttachmentSize int64 = 25 << 20
	DefaultMaxMessageSize    int64 = 35 << 20
)

// HeaderMessageID is the header carrying the generated message id.
const HeaderMessageID = "Message-ID"

// Encoder converts mailer messages into MIME documents.
type Encoder struct {
	now               func() time.Time
	maxAttachmentSize int64
	maxMessageSize    int64
	keepBcc           bool
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithMaxAttachmentSize sets the per-attachment size limit in bytes.
// Default: 25 MiB
func WithMaxAttachmentSize(n int64) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.maxAttachmentSize = n
		}
	}
}

// WithMaxMessageSize sets the limit of the encoded message in bytes.
// Default: 35 MiB
func WithMaxMessageSize(n int64) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.maxMessageSize = n
		}
	}
}

// WithKeepBcc writes the Bcc header into the encoded document. Required by
// APIs that read the recipients from the message itself.
func WithKeepBcc() Option {
	return func(e *Encoder) {
		e.keepBcc = true
	}
}

// WithClock sets the time source for the Date header.
func WithClock(now func() time.Time) Option {
	return func(e *Encoder) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEncoder creates an encoder.
func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{
		now:               time.Now,
		maxAttachmentSize: DefaultMaxAttachmentSize,
		maxMessageSize:    DefaultMaxMessageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build validates msg and converts it into a gomail message with a fresh
// Message-ID.
func (e *Encoder) Build(msg *mailer.Message) (*gomail.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: message is nil", mailer.ErrInvalidArgument)
	}
	addrs, err := parseAddresses(msg)
	if err != nil {
		return nil, err
	}
	for _, a := range msg.Attachments {
		if a.Size() > e.maxAttachmentSize {
			return nil, mailer.NewAttachmentTooLarge(a.Filename, a.Size(), e.maxAttachmentSize)
		}
	}

	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", addrs.from.Address, firstNonEmpty(msg.FromName, addrs.from.Name))
	gm.SetHeader("To", formatList(gm, addrs.to)...)
	if len(addrs.cc) > 0 {
		gm.SetHeader("Cc", formatList(gm, addrs.cc)...)
	}
	if len(addrs.bcc) > 0 {
		gm.SetHeader("Bcc", formatList(gm, addrs.bcc)...)
	}
	if addrs.replyTo != nil {
		gm.SetAddressHeader("Reply-To", addrs.replyTo.Address, addrs.replyTo.Name)
	}
	gm.SetHeader("Subject", msg.Subject)
	gm.SetDateHeader("Date", e.now())
	gm.SetHeader(HeaderMessageID, newMessageID(addrs.from.Address))

	for name, value := range PriorityHeaders(msg.Priority) {
		gm.SetHeader(name, value)
	}
	for _, h := range msg.Headers.All() {
		gm.SetHeader(h.Name, h.Value)
	}

	contentType := "text/plain"
	if msg.IsHTML {
		contentType = "text/html"
	}
	gm.SetBody(contentType, msg.Body)

	for _, a := range msg.Attachments {
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(copyContent(a.Content)),
			gomail.SetHeader(map[string][]string{"Content-Type": {contentTypeOf(a)}}),
		}
		if a.Inline {
			if a.ContentID != "" {
				settings = append(settings, gomail.SetHeader(map[string][]string{"Content-ID": {"<" + a.ContentID + ">"}}))
			}
			gm.Embed(a.Filename, settings...)
			continue
		}
		gm.Attach(a.Filename, settings...)
	}

	return gm, nil
}

// Encode returns the RFC 5322 representation of msg.
func (e *Encoder) Encode(msg *mailer.Message) ([]byte, error) {
	gm, err := e.Build(msg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if e.keepBcc {
		if bcc := gm.GetHeader("Bcc"); len(bcc) > 0 {
			buf.WriteString("Bcc: " + strings.Join(bcc, ", ") + "\r\n")
		}
	}
	if _, err := gm.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("mime: write message: %w", err)
	}
	if size := int64(buf.Len()); size > e.maxMessageSize {
		return nil, mailer.NewMessageTooLarge(size, e.maxMessageSize)
	}
	return buf.Bytes(), nil
}

// MessageID returns the Message-ID assigned by Build, without angle brackets.
func MessageID(gm *gomail.Message) string {
	v := gm.GetHeader(HeaderMessageID)
	if len(v) == 0 {
		return ""
	}
	return strings.Trim(v[0], "<>")
}

// EncodeBase64URL encodes raw message bytes as unpadded URL-safe base64.
func EncodeBase64URL(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// PriorityHeaders returns the headers that express p. Normal priority has none.
func PriorityHeaders(p mailer.Priority) map[string]string {
	switch p {
	case mailer.PriorityLow:
		return map[string]string{"Priority": "non-urgent", "X-Priority": "5"}
	case mailer.PriorityHigh:
		return map[string]string{"Priority": "urgent", "Importance": "high", "X-Priority": "2"}
	case mailer.PriorityUrgent:
		return map[string]string{"Priority": "urgent", "Importance": "high", "X-Priority": "1"}
	}
	return nil
}

func newMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndexByte(from, '@'); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

func copyContent(content []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	}
}

func contentTypeOf(a mailer.Attachment) string {
	if a.ContentType != "" {
		return a.ContentType
	}
	return mailer.DetectContentType(a.Filename, a.Content)
}

func formatList(gm *gomail.Message, list []*mail.Address) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = gm.FormatAddress(a.Address, a.Name)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
