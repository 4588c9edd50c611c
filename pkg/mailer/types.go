package mailer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/textproto"
	"path/filepath"
	"slices"
	"strings"
)

// Priority of a message. The zero value is Normal.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityLow
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// ParsePriority parses a priority name, ignoring case.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	}
	return PriorityNormal, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, s)
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(text []byte) error {
	v, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Message is a transport-agnostic email ready for delivery.
type Message struct {
	From        string       // Sender address
	FromName    string       // Sender display name
	ReplyTo     string       // Reply-to address
	Subject     string       // Rendered subject
	Body        string       // Rendered body
	To          []string     // Recipients
	CC          []string     // Carbon copy recipients
	BCC         []string     // Blind carbon copy recipients
	Attachments []Attachment // File attachments
	Headers     Headers      // Custom headers
	Priority    Priority
	IsHTML      bool
}

// Clone returns a deep copy of the message. Attachment contents are shared.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.To = slices.Clone(m.To)
	c.CC = slices.Clone(m.CC)
	c.BCC = slices.Clone(m.BCC)
	c.Attachments = slices.Clone(m.Attachments)
	c.Headers = m.Headers.Clone()
	return &c
}

// Recipients returns To, CC and BCC addresses in that order.
func (m *Message) Recipients() []string {
	all := make([]string, 0, len(m.To)+len(m.CC)+len(m.BCC))
	all = append(all, m.To...)
	all = append(all, m.CC...)
	return append(all, m.BCC...)
}

// Header is a single custom header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an ordered set of custom headers with canonical MIME names.
// Setting a name that is already present replaces its value in place, so the
// last value wins while the first position is kept. The zero value is ready to use.
type Headers struct {
	items []Header
}

// NewHeaders builds headers from name/value pairs applied in order.
func NewHeaders(pairs ...Header) Headers {
	var h Headers
	for _, p := range pairs {
		h.Set(p.Name, p.Value)
	}
	return h
}

// ValidHeaderName reports whether name is a non-empty RFC 7230 token.
func ValidHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

var headerValueNewlines = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Set adds or replaces a header. Names that are not valid header tokens are
// ignored and line breaks in the value are replaced with spaces.
func (h *Headers) Set(name, value string) {
	name = strings.TrimSpace(name)
	if !ValidHeaderName(name) {
		return
	}
	name = textproto.CanonicalMIMEHeaderKey(name)
	value = headerValueNewlines.Replace(value)
	for i := range h.items {
		if h.items[i].Name == name {
			h.items[i].Value = value
			return
		}
	}
	h.items = append(h.items, Header{Name: name, Value: value})
}

// Get returns the value of a header, ignoring case.
func (h Headers) Get(name string) (string, bool) {
	name = textproto.CanonicalMIMEHeaderKey(name)
	for _, it := range h.items {
		if it.Name == name {
			return it.Value, true
		}
	}
	return "", false
}

// Del removes a header.
func (h *Headers) Del(name string) {
	name = textproto.CanonicalMIMEHeaderKey(name)
	h.items = slices.DeleteFunc(h.items, func(it Header) bool { return it.Name == name })
}

// Merge applies every header of other on top of h.
func (h *Headers) Merge(other Headers) {
	for _, it := range other.items {
		h.Set(it.Name, it.Value)
	}
}

// Len returns the number of headers.
func (h Headers) Len() int {
	return len(h.items)
}

// All returns the headers in order.
func (h Headers) All() []Header {
	return slices.Clone(h.items)
}

// Map returns the headers as a plain map.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h.items))
	for _, it := range h.items {
		m[it.Name] = it.Value
	}
	return m
}

func (h Headers) Clone() Headers {
	return Headers{items: slices.Clone(h.items)}
}

// MarshalJSON encodes headers as an object keeping insertion order.
func (h Headers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, it := range h.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(it.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(it.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the order of its keys.
func (h *Headers) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		h.items = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: headers must be a JSON object", ErrInvalidArgument)
	}
	var out Headers
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		if !ValidHeaderName(strings.TrimSpace(key)) {
			return fmt.Errorf("%w: invalid header name %q", ErrInvalidArgument, key)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out.Set(key, value)
	}
	*h = out
	return nil
}

// Attachment represents an email attachment.
type Attachment struct {
	Filename    string `json:"filename"`             // Display name for the attachment
	ContentType string `json:"content_type"`         // MIME type (e.g., "application/pdf")
	ContentID   string `json:"content_id,omitempty"` // Content-ID for inline parts
	Content     []byte `json:"content"`              // Raw file content
	Inline      bool   `json:"inline,omitempty"`     // Render inside the body instead of as a download
}

// NewAttachment builds an attachment detecting the content type from the
// file extension, falling back to content sniffing.
func NewAttachment(filename string, content []byte) Attachment {
	return Attachment{
		Filename:    filename,
		ContentType: DetectContentType(filename, content),
		Content:     content,
	}
}

// InlineImage builds an inline attachment referenced from HTML as cid:<contentID>.
func InlineImage(filename, contentID string, content []byte) Attachment {
	a := NewAttachment(filename, content)
	a.ContentID = contentID
	a.Inline = true
	return a
}

// Size returns the attachment size in bytes.
func (a Attachment) Size() int64 {
	return int64(len(a.Content))
}

const defaultContentType = "application/octet-stream"

// DetectContentType resolves a MIME type from the filename extension, then
// from the first bytes of the content.
func DetectContentType(filename string, content []byte) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	if len(content) > 0 {
		return http.DetectContentType(content)
	}
	return defaultContentType
}

// SendOptions holds per-call overrides applied on top of the template and
// tenant defaults.
type SendOptions struct {
	Priority    *Priority    `json:"priority,omitempty"`
	From        string       `json:"from,omitempty"`
	FromName    string       `json:"from_name,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	CC          []string     `json:"cc,omitempty"`
	BCC         []string     `json:"bcc,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Headers     Headers      `json:"headers"`
}

// WithPriority returns options overriding the template priority.
func WithPriority(p Priority) *SendOptions {
	return &SendOptions{Priority: &p}
}

// HighPriority returns options sending with high priority.
func HighPriority() *SendOptions { return WithPriority(PriorityHigh) }

// UrgentPriority returns options sending with urgent priority.
func UrgentPriority() *SendOptions { return WithPriority(PriorityUrgent) }

// Defaults holds sender settings of a tenant.
type Defaults struct {
	SenderEmail string  `yaml:"sender_email" json:"sender_email,omitempty"`
	SenderName  string  `yaml:"sender_name" json:"sender_name,omitempty"`
	ReplyTo     string  `yaml:"reply_to" json:"reply_to,omitempty"`
	Headers     Headers `yaml:"-" json:"headers"`
}

// Or fills empty fields of d from fallback. Headers of fallback come first
// so d's headers win on conflicts.
func (d Defaults) Or(fallback Defaults) Defaults {
	out := d
	if out.SenderEmail == "" {
		out.SenderEmail = fallback.SenderEmail
	}
	if out.SenderName == "" {
		out.SenderName = fallback.SenderName
	}
	if out.ReplyTo == "" {
		out.ReplyTo = fallback.ReplyTo
	}
	headers := fallback.Headers.Clone()
	headers.Merge(d.Headers)
	out.Headers = headers
	return out
}

// Recipient formats a name and email into RFC 5322 address format.
// Returns "Name <email>" if name is provided, otherwise just email.
func Recipient(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
