package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrymomot/courier/pkg/attachment"
	"github.com/dmitrymomot/courier/pkg/mailer"
)

type sendOptions struct {
	Priority    *mailer.Priority `json:"priority,omitempty"`
	From        string           `json:"from,omitempty"`
	FromName    string           `json:"from_name,omitempty"`
	ReplyTo     string           `json:"reply_to,omitempty"`
	CC          []string         `json:"cc,omitempty"`
	BCC         []string         `json:"bcc,omitempty"`
	Headers     mailer.Headers   `json:"headers"`
	Attachments []attachment.Ref `json:"attachments,omitempty"`
}

type sendTemplateRequest struct {
	Model   map[string]any `json:"model"`
	Options *sendOptions   `json:"options,omitempty"`
	To      []string       `json:"to"`
}

type rawMessageRequest struct {
	Priority    mailer.Priority  `json:"priority"`
	From        string           `json:"from,omitempty"`
	FromName    string           `json:"from_name,omitempty"`
	ReplyTo     string           `json:"reply_to,omitempty"`
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	To          []string         `json:"to"`
	CC          []string         `json:"cc,omitempty"`
	BCC         []string         `json:"bcc,omitempty"`
	Headers     mailer.Headers   `json:"headers"`
	Attachments []attachment.Ref `json:"attachments,omitempty"`
	IsHTML      bool             `json:"is_html"`
}

type templateRequest struct {
	Priority mailer.Priority `json:"priority"`
	Subject  string          `json:"subject"`
	Body     string          `json:"body"`
	IsHTML   *bool           `json:"is_html,omitempty"`
}

type templateResponse struct {
	Tenant   string          `json:"tenant"`
	Type     string          `json:"type"`
	Subject  string          `json:"subject"`
	Body     string          `json:"body"`
	Priority mailer.Priority `json:"priority"`
	IsHTML   bool            `json:"is_html"`
}

type previewResponse struct {
	From     string          `json:"from,omitempty"`
	FromName string          `json:"from_name,omitempty"`
	ReplyTo  string          `json:"reply_to,omitempty"`
	Subject  string          `json:"subject"`
	Body     string          `json:"body"`
	To       []string        `json:"to"`
	Headers  mailer.Headers  `json:"headers"`
	Priority mailer.Priority `json:"priority"`
	IsHTML   bool            `json:"is_html"`
}

func newTemplateResponse(tenant, typ string, t *mailer.Template) templateResponse {
	return templateResponse{
		Tenant:   tenant,
		Type:     typ,
		Subject:  t.Subject(),
		Body:     t.Body(),
		Priority: t.Priority(),
		IsHTML:   t.IsHTML(),
	}
}

func newPreviewResponse(m *mailer.Message) previewResponse {
	return previewResponse{
		From:     m.From,
		FromName: m.FromName,
		ReplyTo:  m.ReplyTo,
		Subject:  m.Subject,
		Body:     m.Body,
		To:       m.To,
		Headers:  m.Headers,
		Priority: m.Priority,
		IsHTML:   m.IsHTML,
	}
}

func (r sendTemplateRequest) validate() error {
	if len(r.To) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", mailer.ErrInvalidArgument)
	}
	return nil
}

// model converts JSON numbers in the request model to int64 when they are
// integral and to float64 otherwise, so integer format codes apply.
func (r sendTemplateRequest) model() mailer.Map {
	if r.Model == nil {
		return nil
	}
	return mailer.Map(numbers(r.Model).(map[string]any))
}

func numbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		for k, item := range v {
			v[k] = numbers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = numbers(item)
		}
		return v
	}
	return v
}

func (r templateRequest) validate() error {
	if strings.TrimSpace(r.Subject) == "" && strings.TrimSpace(r.Body) == "" {
		return fmt.Errorf("%w: subject or body is required", mailer.ErrInvalidArgument)
	}
	return nil
}

// toSendOptions converts the request options and resolves attachment
// references.
func (s *Server) toSendOptions(ctx context.Context, o *sendOptions) (*mailer.SendOptions, error) {
	if o == nil {
		return nil, nil
	}
	atts, err := s.resolve(ctx, o.Attachments)
	if err != nil {
		return nil, err
	}
	return &mailer.SendOptions{
		Priority:    o.Priority,
		From:        o.From,
		FromName:    o.FromName,
		ReplyTo:     o.ReplyTo,
		CC:          o.CC,
		BCC:         o.BCC,
		Headers:     o.Headers,
		Attachments: atts,
	}, nil
}

func (s *Server) toMessage(ctx context.Context, r rawMessageRequest) (*mailer.Message, error) {
	atts, err := s.resolve(ctx, r.Attachments)
	if err != nil {
		return nil, err
	}
	return &mailer.Message{
		From:        r.From,
		FromName:    r.FromName,
		ReplyTo:     r.ReplyTo,
		Subject:     r.Subject,
		Body:        r.Body,
		To:          r.To,
		CC:          r.CC,
		BCC:         r.BCC,
		Attachments: atts,
		Headers:     r.Headers,
		Priority:    r.Priority,
		IsHTML:      r.IsHTML,
	}, nil
}

func (s *Server) resolve(ctx context.Context, refs []attachment.Ref) ([]mailer.Attachment, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	if s.attachments == nil {
		return nil, errAttachmentsDisabled
	}
	return s.attachments.Resolve(ctx, refs)
}
