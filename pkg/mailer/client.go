package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/courier/pkg/logger"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultRetryAfter  = 60 * time.Second
)

// Transport performs one delivery call against a provider and returns the
// provider-assigned message id. Non-success provider answers should be
// reported as *ProviderError or as a typed *Error.
type Transport interface {
	Deliver(ctx context.Context, msg *Message) (string, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, msg *Message) (string, error)

func (f TransportFunc) Deliver(ctx context.Context, msg *Message) (string, error) {
	return f(ctx, msg)
}

// Connector acquires an authenticated transport. It is called lazily on
// first use and again after an authentication failure.
type Connector interface {
	Connect(ctx context.Context) (Transport, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Transport, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// StaticConnector returns a connector that always yields t.
func StaticConnector(t Transport) Connector {
	return ConnectorFunc(func(context.Context) (Transport, error) { return t, nil })
}

// Verifier is implemented by transports able to check their credentials
// without sending a message.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Cooldown remembers providers that asked callers to back off.
type Cooldown interface {
	Hold(ctx context.Context, key string, d time.Duration) error
	Remaining(ctx context.Context, key string) (time.Duration, error)
}

// Attempt describes one finished delivery attempt.
type Attempt struct {
	Err       error
	Provider  string
	Number    int
	Duration  time.Duration
	WillRetry bool
}

// AttemptObserver is notified after every delivery attempt.
type AttemptObserver interface {
	ObserveAttempt(ctx context.Context, a Attempt)
}

// Client wraps a provider transport with bounded retry, error
// classification and lazy credential acquisition. It is safe for concurrent use.
type Client struct {
	connector Connector
	transport Transport
	gen       uint64 // incremented on every acquired transport
	cooldown  Cooldown
	observer  AttemptObserver
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	group     singleflight.Group
	name      string

	maxAttempts       int
	baseDelay         time.Duration
	defaultRetryAfter time.Duration

	mu sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithName sets the provider name used in logs, metrics and error messages.
// Default: "provider"
func WithName(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// WithMaxAttempts sets how many times a retryable failure is attempted.
// Default: 3
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		c.maxAttempts = max(n, 1)
	}
}

// WithBaseDelay sets the delay before the first retry. Each following
// retry waits twice as long as the previous one.
// Default: 1 second
func WithBaseDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.baseDelay = d
		}
	}
}

// WithDefaultRetryAfter sets the wait suggested on rate limiting when the
// provider does not specify one.
// Default: 60 seconds
func WithDefaultRetryAfter(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.defaultRetryAfter = d
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCooldown makes the client remember rate limits. While the provider
// cooldown is active, sends fail fast with a rate limit error.
func WithCooldown(store Cooldown) ClientOption {
	return func(c *Client) {
		c.cooldown = store
	}
}

// WithAttemptObserver registers an observer notified after every attempt.
func WithAttemptObserver(o AttemptObserver) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a client acquiring its transport from connector.
func NewClient(connector Connector, opts ...ClientOption) *Client {
	c := &Client{
		connector:         connector,
		logger:            logger.NewNope(),
		sleep:             sleepContext,
		now:               time.Now,
		name:              "provider",
		maxAttempts:       DefaultMaxAttempts,
		baseDelay:         DefaultBaseDelay,
		defaultRetryAfter: DefaultRetryAfter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Send delivers msg and returns the provider message id.
//
// Service unavailable (503) and gateway timeout (504) answers are retried with
// exponential backoff; once attempts run out the last one is returned as a
// SendFailed error wrapping the ProviderError. Rate limiting (429)
// is never retried and yields a RateLimitExceeded error. An unauthorized (401)
// answer drops the cached transport and yields an AuthenticationFailed error.
// Other provider failures become SendFailed errors. Cancellation of ctx
// surfaces as the context error.
func (c *Client) Send(ctx context.Context, msg *Message) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("%w: message is nil", ErrInvalidArgument)
	}
	if err := c.checkCooldown(ctx); err != nil {
		return "", err
	}

	transport, gen, err := c.acquire(ctx)
	if err != nil {
		return "", err
	}

	delay := c.baseDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		started := c.now()
		id, err := transport.Deliver(ctx, msg)
		if err == nil {
			c.observe(ctx, Attempt{Provider: c.name, Number: attempt, Duration: c.now().Sub(started)})
			return id, nil
		}

		retryable, err := c.classify(ctx, gen, err)
		willRetry := retryable && attempt < c.maxAttempts
		if retryable && !willRetry {
			err = c.exhausted(err)
		}
		c.observe(ctx, Attempt{
			Provider:  c.name,
			Number:    attempt,
			Duration:  c.now().Sub(started),
			Err:       err,
			WillRetry: willRetry,
		})
		if !willRetry {
			return "", err
		}

		c.logger.WarnContext(ctx, "provider temporarily unavailable, retrying",
			slog.String("provider", c.name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}
}

// Verify acquires the transport and, when supported, checks the credentials
// with the provider.
func (c *Client) Verify(ctx context.Context) error {
	transport, gen, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	v, ok := transport.(Verifier)
	if !ok {
		return nil
	}
	if err := v.Verify(ctx); err != nil {
		retryable, mapped := c.classify(ctx, gen, err)
		if retryable {
			return c.exhausted(mapped)
		}
		return mapped
	}
	return nil
}

// Reset drops the cached transport. The next send acquires a new one.
func (c *Client) Reset() {
	c.mu.Lock()
	c.transport = nil
	c.mu.Unlock()
}

// resetIf drops the cached transport only if it is still the one of
// generation gen, leaving a transport acquired concurrently in place.
func (c *Client) resetIf(gen uint64) {
	c.mu.Lock()
	if c.gen == gen {
		c.transport = nil
	}
	c.mu.Unlock()
}

type acquired struct {
	transport Transport
	gen       uint64
}

func (c *Client) acquire(ctx context.Context) (Transport, uint64, error) {
	c.mu.RLock()
	t, gen := c.transport, c.gen
	c.mu.RUnlock()
	if t != nil {
		return t, gen, nil
	}

	// The connect call is shared by every concurrent caller, so it must not
	// be bound to the cancellation of whichever caller started it.
	connectCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("connect", func() (any, error) {
		c.mu.RLock()
		existing := acquired{transport: c.transport, gen: c.gen}
		c.mu.RUnlock()
		if existing.transport != nil {
			return existing, nil
		}

		t, err := c.connector.Connect(connectCtx)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, NewInvalidConfiguration("connector returned no transport")
		}

		c.mu.Lock()
		c.gen++
		c.transport = t
		a := acquired{transport: t, gen: c.gen}
		c.mu.Unlock()
		return a, nil
	})

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, 0, c.connectError(ctx, res.Err)
		}
		a := res.Val.(acquired)
		return a.transport, a.gen, nil
	}
}

func (c *Client) connectError(ctx context.Context, err error) error {
	c.logger.ErrorContext(ctx, "failed to acquire provider transport",
		slog.String("provider", c.name),
		slog.String("error", err.Error()),
	)
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return NewAuthenticationFailed(fmt.Sprintf("Failed to authenticate with %s.", c.name), "", err)
}

// classify maps a transport error onto the taxonomy and reports whether the
// attempt may be retried.
func (c *Client) classify(ctx context.Context, gen uint64, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	var typed *Error
	if errors.As(err, &typed) {
		switch {
		case typed.Code.IsAuth():
			c.resetIf(gen)
		case typed.Code.Category() == CodeRateLimitExceeded:
			if typed.RetryAfter <= 0 {
				cp := *typed
				cp.RetryAfter = c.defaultRetryAfter
				typed = &cp
				err = typed
			}
			c.hold(ctx, typed.RetryAfter)
		}
		return false, err
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		return false, NewSendFailed(fmt.Sprintf("Failed to send email via %s: %v", c.name, err), err)
	}

	switch perr.StatusCode {
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, err
	case http.StatusTooManyRequests:
		retryAfter := perr.RetryAfter
		if retryAfter <= 0 {
			retryAfter = c.defaultRetryAfter
		}
		c.hold(ctx, retryAfter)
		rl := NewRateLimit(retryAfter)
		rl.Err = perr
		return false, rl
	case http.StatusUnauthorized:
		c.resetIf(gen)
		return false, NewAuthenticationFailed(fmt.Sprintf("%s rejected the credentials.", c.name), "", perr)
	}
	return false, NewSendFailed(fmt.Sprintf("Failed to send email via %s: %s", c.name, perr.Message), perr)
}

// exhausted converts a transient failure that will not be retried again into
// a SendFailed error.
func (c *Client) exhausted(err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return NewSendFailed(fmt.Sprintf("Failed to send email via %s: %s", c.name, perr.Message), perr)
	}
	return NewSendFailed(fmt.Sprintf("Failed to send email via %s: %v", c.name, err), err)
}

func (c *Client) checkCooldown(ctx context.Context) error {
	if c.cooldown == nil {
		return nil
	}
	remaining, err := c.cooldown.Remaining(ctx, c.name)
	if err != nil {
		c.logger.WarnContext(ctx, "cooldown lookup failed",
			slog.String("provider", c.name),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if remaining > 0 {
		return NewRateLimit(remaining)
	}
	return nil
}

func (c *Client) hold(ctx context.Context, d time.Duration) {
	if c.cooldown == nil {
		return
	}
	if err := c.cooldown.Hold(ctx, c.name, d); err != nil {
		c.logger.WarnContext(ctx, "failed to store provider cooldown",
			slog.String("provider", c.name),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Client) observe(ctx context.Context, a Attempt) {
	if c.observer != nil {
		c.observer.ObserveAttempt(ctx, a)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
