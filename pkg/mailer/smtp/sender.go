// Package smtp delivers mailer messages through an SMTP relay.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/mailer/mime"
)

// Sender implements mailer.Transport and mailer.Verifier over SMTP.
type Sender struct {
	dialer  *gomail.Dialer
	encoder *mime.Encoder
	logger  *slog.Logger
	cfg     Config
}

// Option configures a Sender.
type Option func(*Sender)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEncoder replaces the default MIME encoder.
func WithEncoder(e *mime.Encoder) Option {
	return func(s *Sender) {
		if e != nil {
			s.encoder = e
		}
	}
}

// New creates an SMTP sender.
func New(cfg Config, opts ...Option) *Sender {
	if cfg.TLSMode == "" {
		cfg.TLSMode = TLSAuto
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	switch cfg.TLSMode {
	case TLSImplicit:
		d.SSL = true
	case TLSStartTLS:
		d.SSL = false
	}
	if cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host} //nolint:gosec
	}
	if cfg.LocalName != "" {
		d.LocalName = cfg.LocalName
	}

	s := &Sender{
		dialer:  d,
		encoder: mime.NewEncoder(),
		logger:  logger.NewNope(),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connector returns a connector that always yields s.
func (s *Sender) Connector() mailer.Connector {
	return mailer.StaticConnector(s)
}

// Deliver sends msg and returns its Message-ID.
func (s *Sender) Deliver(ctx context.Context, msg *mailer.Message) (string, error) {
	if msg == nil {
		return "", mailer.ErrInvalidArgument
	}
	out := msg.Clone()
	if out.From == "" {
		out.From = s.cfg.SenderEmail
		if out.FromName == "" {
			out.FromName = s.cfg.SenderName
		}
	}

	gm, err := s.encoder.Build(out)
	if err != nil {
		return "", err
	}
	id := mime.MessageID(gm)

	err = s.run(ctx, func() error { return s.dialer.DialAndSend(gm) })
	if err != nil {
		return "", s.mapError(ctx, out, err)
	}
	return id, nil
}

// Verify connects and authenticates without sending.
func (s *Sender) Verify(ctx context.Context) error {
	err := s.run(ctx, func() error {
		sc, err := s.dialer.Dial()
		if err != nil {
			return err
		}
		return sc.Close()
	})
	if err != nil {
		return s.mapError(ctx, nil, err)
	}
	return nil
}

// run executes fn so that ctx cancellation returns early. The SMTP exchange
// itself cannot be interrupted and finishes in the background.
func (s *Sender) run(ctx context.Context, fn func() error) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

var replyCode = regexp.MustCompile(`(?:^|[^0-9])([2-5][0-9]{2})[ -]`)

func (s *Sender) mapError(ctx context.Context, msg *mailer.Message, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var operr *net.OpError
	if errors.As(err, &operr) {
		s.logger.WarnContext(ctx, "smtp server unreachable",
			slog.String("host", s.cfg.Host),
			slog.String("error", err.Error()),
		)
		return &mailer.ProviderError{StatusCode: http.StatusServiceUnavailable, Message: "SMTP server unreachable", Err: err}
	}

	code, text := smtpReply(err)
	s.logger.WarnContext(ctx, "smtp delivery failed",
		slog.String("host", s.cfg.Host),
		slog.Int("reply_code", code),
		slog.String("error", err.Error()),
	)

	switch code {
	case 0:
		return fmt.Errorf("smtp: %w", err)
	case 421, 450, 451, 452, 454:
		return &mailer.ProviderError{StatusCode: http.StatusServiceUnavailable, Message: text, Reason: strconv.Itoa(code), Err: err}
	case 530, 534, 535:
		return &mailer.ProviderError{StatusCode: http.StatusUnauthorized, Message: text, Reason: strconv.Itoa(code), Err: err}
	case 550, 553:
		if msg != nil {
			e := mailer.NewInvalidRecipient(strings.Join(msg.Recipients(), ", "))
			e.Err = err
			return e
		}
	}
	return &mailer.ProviderError{StatusCode: http.StatusBadGateway, Message: text, Reason: strconv.Itoa(code), Err: err}
}

// smtpReply extracts the reply code and text from err. gomail does not wrap
// its causes, so the message is parsed as a fallback.
func smtpReply(err error) (int, string) {
	var tperr *textproto.Error
	if errors.As(err, &tperr) {
		return tperr.Code, tperr.Msg
	}
	m := replyCode.FindStringSubmatchIndex(err.Error())
	if m == nil {
		return 0, err.Error()
	}
	code, _ := strconv.Atoi(err.Error()[m[2]:m[3]])
	return code, strings.TrimSpace(err.Error()[m[3]:])
}
