package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/mailer"
)

// OAuth scopes requested for both authentication methods.
const (
	ScopeSend     = "https://www.googleapis.com/auth/gmail.send"
	ScopeReadonly = "https://www.googleapis.com/auth/gmail.readonly"
)

var scopes = []string{ScopeSend, ScopeReadonly}

// Connector obtains Gmail credentials and builds an authorised Transport.
// It implements mailer.Connector.
type Connector struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
}

// Option configures a Connector.
type Option func(*Connector)

// WithHTTPClient sets the HTTP client used for token requests and as the
// base of API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Connector) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConnector creates a connector for cfg.
func NewConnector(cfg Config, opts ...Option) *Connector {
	c := &Connector{
		httpClient: http.DefaultClient,
		logger:     logger.NewNope(),
		cfg:        cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect reads the credentials, obtains an access token and returns a
// transport using it. Tokens are refreshed transparently afterwards.
func (c *Connector) Connect(ctx context.Context) (mailer.Transport, error) {
	data, err := os.ReadFile(c.cfg.CredentialsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, mailer.NewCredentialsFileNotFound(c.cfg.CredentialsPath)
		}
		return nil, mailer.NewInvalidCredentials("cannot read credentials file", err)
	}

	// Token refreshes happen long after Connect returns.
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, c.httpClient)

	var ts oauth2.TokenSource
	switch c.cfg.AuthMethod {
	case AuthServiceAccount:
		ts, err = c.serviceAccount(tokenCtx, data)
	default:
		ts, err = c.oauth(tokenCtx, data)
	}
	if err != nil {
		return nil, err
	}

	if _, err := ts.Token(); err != nil {
		c.logger.ErrorContext(ctx, "gmail token acquisition failed",
			slog.String("auth_method", string(c.cfg.AuthMethod)),
			slog.String("error", err.Error()),
		)
		if c.cfg.AuthMethod == AuthOAuth {
			return nil, mailer.NewTokenExpired(err)
		}
		return nil, mailer.NewAuthenticationFailed("Failed to authenticate with Gmail API.", string(c.cfg.AuthMethod), err)
	}

	hc := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: c.httpClient.Transport},
	}
	c.logger.InfoContext(ctx, "gmail transport connected",
		slog.String("auth_method", string(c.cfg.AuthMethod)),
		slog.String("sender", c.cfg.SenderEmail),
	)
	return NewTransport(hc, c.cfg), nil
}

func (c *Connector) serviceAccount(ctx context.Context, data []byte) (oauth2.TokenSource, error) {
	jwtCfg, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, mailer.NewInvalidServiceAccount(err.Error(), err)
	}
	// Domain-wide delegation: act on behalf of the sender mailbox.
	jwtCfg.Subject = c.cfg.SenderEmail
	return jwtCfg.TokenSource(ctx), nil
}

func (c *Connector) oauth(ctx context.Context, data []byte) (oauth2.TokenSource, error) {
	conf, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, mailer.NewInvalidCredentials("cannot parse OAuth client secrets", err)
	}

	tok, err := readToken(c.cfg.TokenPath)
	if err != nil {
		return nil, err
	}

	return &savingTokenSource{
		src:    conf.TokenSource(ctx, tok),
		path:   c.cfg.TokenPath,
		last:   tok.AccessToken,
		logger: c.logger,
	}, nil
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mailer.NewInvalidCredentials("OAuth token file is missing or unreadable: "+path, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, mailer.NewInvalidCredentials("OAuth token file is malformed: "+path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, mailer.NewInvalidCredentials("OAuth token file holds no token: "+path, nil)
	}
	return &tok, nil
}

// savingTokenSource writes every newly issued token back to the token file
// so a restart does not need a fresh consent.
type savingTokenSource struct {
	src    oauth2.TokenSource
	logger *slog.Logger
	path   string
	last   string
	mu     sync.Mutex
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken

	data, err := json.Marshal(tok)
	if err == nil {
		err = os.WriteFile(s.path, data, 0o600)
	}
	if err != nil {
		s.logger.Warn("failed to persist refreshed gmail token",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	}
	return tok, nil
}
