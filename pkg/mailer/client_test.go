package mailer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Deliver(ctx context.Context, msg *Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type recordedSleeps struct {
	delays []time.Duration
	mu     sync.Mutex
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

type memCooldown struct {
	holds map[string]time.Duration
	err   error
	mu    sync.Mutex
}

func (m *memCooldown) Hold(_ context.Context, key string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holds == nil {
		m.holds = make(map[string]time.Duration)
	}
	m.holds[key] = d
	return m.err
}

func (m *memCooldown) Remaining(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holds[key], m.err
}

type attemptRecorder struct {
	attempts []Attempt
	mu       sync.Mutex
}

func (r *attemptRecorder) ObserveAttempt(_ context.Context, a Attempt) {
	r.mu.Lock()
	r.attempts = append(r.attempts, a)
	r.mu.Unlock()
}

func newTestClient(t *testing.T, tr Transport, opts ...ClientOption) (*Client, *recordedSleeps) {
	t.Helper()

	sleeps := &recordedSleeps{}
	c := NewClient(StaticConnector(tr), append([]ClientOption{WithName("gmail")}, opts...)...)
	c.sleep = sleeps.sleep
	return c, sleeps
}

func testMessage() *Message {
	return &Message{From: "from@x.test", To: []string{"to@x.test"}, Subject: "s", Body: "b", IsHTML: true}
}

func TestClient_Send_Success(t *testing.T) {
	t.Parallel()

	tr := &mockTransport{}
	tr.On("Deliver", mock.Anything, mock.Anything).Return("msg-1", nil).Once()

	obs := &attemptRecorder{}
	c, sleeps := newTestClient(t, tr, WithAttemptObserver(obs))

	id, err := c.Send(context.Background(), testMessage())
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)
	require.Empty(t, sleeps.delays)
	require.Len(t, obs.attempts, 1)
	require.Equal(t, "gmail", obs.attempts[0].Provider)
	require.NoError(t, obs.attempts[0].Err)
	tr.AssertExpectations(t)
}

func TestClient_Send_RetriesServiceUnavailable(t *testing.T) {
	t.Parallel()

	tr := &mockTransport{}
	tr.On("Deliver", mock.Anything, mock.Anything).Return("", &ProviderError{StatusCode: 503, Message: "unavailable"}).Twice()
	tr.On("Deliver", mock.Anything, mock.Anything).Return("msg-3", nil).Once()

	obs := &attemptRecorder{}
	c, sleeps := newTestClient(t, tr, WithAttemptObserver(obs))

	id, err := c.Send(context.Background(), testMessage())
	require.NoError(t, err)
	require.Equal(t, "msg-3", id)
	tr.AssertNumberOfCalls(t, "Deliver", 3)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)

	require.Len(t, obs.attempts, 3)
	require.True(t, obs.attempts[0].WillRetry)
	require.True(t, obs.attempts[1].WillRetry)
	require.Equal(t, 3, obs.attempts[2].Number)
}

func TestClient_Send_ExhaustedReturnsSendFailed(t *testing.T) {
	t.Parallel()

	timeout := &ProviderError{StatusCode: 504, Message: "gateway timeout"}
	tr := &mockTransport{}
	tr.On("Deliver", mock.Anything, mock.Anything).Return("", timeout)

	obs := &attemptRecorder{}
	c, sleeps := newTestClient(t, tr, WithBaseDelay(10*time.Millisecond), WithAttemptObserver(obs))

	_, err := c.Send(context.Background(), testMessage())
	require.ErrorIs(t, err, ErrSendFailed)
	require.Equal(t, CodeSendFailed, CodeOf(err))
	require.Contains(t, err.Error(), "Failed to send email via gmail: gateway timeout")

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Same(t, timeout, perr)

	require.Len(t, obs.attempts, DefaultMaxAttempts)
	require.Equal(t, CodeSendFailed, CodeOf(obs.attempts[DefaultMaxAttempts-1].Err))
	tr.AssertNumberOfCalls(t, "Deliver", DefaultMaxAttempts)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeps.delays)
}

func TestClient_Send_RateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retryAfter time.Duration
		want       time.Duration
	}{
		{name: "provider value", retryAfter: 5 * time.Second, want: 5 * time.Second},
		{name: "default", want: DefaultRetryAfter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := &mockTransport{}
			tr.On("Deliver", mock.Anything, mock.Anything).Return("", &ProviderError{StatusCode: 429, RetryAfter: tt.retryAfter})

			cd := &memCooldown{}
			c, sleeps := newTestClient(t, tr, WithCooldown(cd))

			_, err := c.Send(context.Background(), testMessage())
			require.ErrorIs(t, err, ErrRateLimit)
			require.Equal(t, CodeRateLimitExceeded, CodeOf(err))
			ra, ok := RetryAfterOf(err)
			require.True(t, ok)
			require.Equal(t, tt.want, ra)
			tr.AssertNumberOfCalls(t, "Deliver", 1)
			require.Empty(t, sleeps.delays)
			require.Equal(t, tt.want, cd.holds["gmail"])

			// The cooldown short-circuits the next send.
			_, err = c.Send(context.Background(), testMessage())
			require.ErrorIs(t, err, ErrRateLimit)
			tr.AssertNumberOfCalls(t, "Deliver", 1)
		})
	}
}

func TestClient_Send_QuotaErrorGetsDefaultRetryAfter(t *testing.T) {
	t.Parallel()

	tr := &mockTransport{}
	tr.On("Deliver", mock.Anything, mock.Anything).Return("", NewQuotaExceeded("", 0))

	c, _ := newTestClient(t, tr)
	_, err := c.Send(context.Background(), testMessage())
	require.ErrorIs(t, err, ErrQuotaExceeded)
	ra, ok := RetryAfterOf(err)
	require.True(t, ok)
	require.Equal(t, DefaultRetryAfter, ra)
}

func TestClient_Send_UnauthorizedResetsTransport(t *testing.T) {
	t.Parallel()

	first := &mockTransport{}
	first.On("Deliver", mock.Anything, mock.Anything).Return("", &ProviderError{StatusCode: 401, Message: "invalid token"})
	second := &mockTransport{}
	second.On("Deliver", mock.Anything, mock.Anything).Return("msg-2", nil)

	var connects atomic.Int32
	c := NewClient(ConnectorFunc(func(context.Context) (Transport, error) {
		if connects.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	}))

	_, err := c.Send(context.Background(), testMessage())
	require.ErrorIs(t, err, ErrAuthentication)
	require.Equal(t, CodeAuthenticationFailed, CodeOf(err))
	first.AssertNumberOfCalls(t, "Deliver", 1)

	id, err := c.Send(context.Background(), testMessage())
	require.NoError(t, err)
	require.Equal(t, "msg-2", id)
	require.EqualValues(t, 2, connects.Load())
}

func TestClient_Send_OtherFailures(t *testing.T) {
	t.Parallel()

	t.Run("provider error becomes send failed", func(t *testing.T) {
		t.Parallel()

		perr := &ProviderError{StatusCode: 400, Message: "Invalid To header"}
		tr := &mockTransport{}
		tr.On("Deliver", mock.Anything, mock.Anything).Return("", perr)

		c, sleeps := newTestClient(t, tr)
		_, err := c.Send(context.Background(), testMessage())
		require.ErrorIs(t, err, ErrSendFailed)
		require.ErrorIs(t, err, perr)

		var typed *Error
		require.ErrorAs(t, err, &typed)
		require.Equal(t, "Failed to send email via gmail: Invalid To header", typed.Message)
		require.Empty(t, sleeps.delays)
	})

	t.Run("untyped error becomes send failed", func(t *testing.T) {
		t.Parallel()

		netErr := errors.New("connection reset")
		tr := &mockTransport{}
		tr.On("Deliver", mock.Anything, mock.Anything).Return("", netErr)

		c, _ := newTestClient(t, tr)
		_, err := c.Send(context.Background(), testMessage())
		require.ErrorIs(t, err, ErrSendFailed)
		require.ErrorIs(t, err, netErr)
		tr.AssertNumberOfCalls(t, "Deliver", 1)
	})

	t.Run("typed error passes through", func(t *testing.T) {
		t.Parallel()

		typed := NewInvalidRecipient("bad")
		tr := &mockTransport{}
		tr.On("Deliver", mock.Anything, mock.Anything).Return("", typed)

		c, _ := newTestClient(t, tr)
		_, err := c.Send(context.Background(), testMessage())
		require.Same(t, typed, err)
	})

	t.Run("nil message", func(t *testing.T) {
		t.Parallel()

		c, _ := newTestClient(t, &mockTransport{})
		_, err := c.Send(context.Background(), nil)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestClient_Send_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	tr := &mockTransport{}
	tr.On("Deliver", mock.Anything, mock.Anything).Return("", &ProviderError{StatusCode: 503})

	c := NewClient(StaticConnector(tr), WithBaseDelay(time.Hour))
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	_, err := c.Send(ctx, testMessage())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, CodeUnknown, CodeOf(err))
	tr.AssertNumberOfCalls(t, "Deliver", 1)
}

func TestClient_Send_CancelledDuringDelivery(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	tr := TransportFunc(func(ctx context.Context, _ *Message) (string, error) {
		cancel()
		<-ctx.Done()
		return "", &ProviderError{StatusCode: 503, Err: ctx.Err()}
	})

	c, sleeps := newTestClient(t, tr)
	_, err := c.Send(ctx, testMessage())
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, sleeps.delays)
}

func TestClient_ConnectFailures(t *testing.T) {
	t.Parallel()

	t.Run("typed error kept", func(t *testing.T) {
		t.Parallel()

		c := NewClient(ConnectorFunc(func(context.Context) (Transport, error) {
			return nil, NewCredentialsFileNotFound("/creds.json")
		}))
		_, err := c.Send(context.Background(), testMessage())
		require.ErrorIs(t, err, ErrCredentialsFileNotFound)
		require.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("untyped error wrapped as auth", func(t *testing.T) {
		t.Parallel()

		c := NewClient(ConnectorFunc(func(context.Context) (Transport, error) {
			return nil, errors.New("no network")
		}), WithName("resend"))
		_, err := c.Send(context.Background(), testMessage())
		require.ErrorIs(t, err, ErrAuthentication)
		require.Contains(t, err.Error(), "Failed to authenticate with resend.")
	})

	t.Run("nil transport", func(t *testing.T) {
		t.Parallel()

		c := NewClient(ConnectorFunc(func(context.Context) (Transport, error) { return nil, nil }))
		_, err := c.Send(context.Background(), testMessage())
		require.ErrorIs(t, err, ErrInvalidConfiguration)
	})
}

func TestClient_AcquireIsShared(t *testing.T) {
	t.Parallel()

	var connects atomic.Int32
	release := make(chan struct{})
	tr := TransportFunc(func(context.Context, *Message) (string, error) { return "id", nil })
	c := NewClient(ConnectorFunc(func(context.Context) (Transport, error) {
		connects.Add(1)
		<-release
		return tr, nil
	}))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Send(context.Background(), testMessage())
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, connects.Load())
}

func TestClient_CooldownStoreErrorsAreIgnored(t *testing.T) {
	t.Parallel()

	tr := &mockTransport{}
	tr.On("Deliver", mock.Anything, mock.Anything).Return("id", nil)

	c, _ := newTestClient(t, tr, WithCooldown(&memCooldown{err: errors.New("redis down")}))
	id, err := c.Send(context.Background(), testMessage())
	require.NoError(t, err)
	require.Equal(t, "id", id)
}

type verifyingTransport struct {
	TransportFunc
	err error
}

func (v verifyingTransport) Verify(context.Context) error { return v.err }

func TestClient_Verify(t *testing.T) {
	t.Parallel()

	ok := verifyingTransport{}
	require.NoError(t, NewClient(StaticConnector(ok)).Verify(context.Background()))

	bad := verifyingTransport{err: &ProviderError{StatusCode: 401}}
	err := NewClient(StaticConnector(bad)).Verify(context.Background())
	require.ErrorIs(t, err, ErrAuthentication)

	plain := TransportFunc(func(context.Context, *Message) (string, error) { return "", nil })
	require.NoError(t, NewClient(StaticConnector(plain)).Verify(context.Background()))

	down := verifyingTransport{err: &ProviderError{StatusCode: 503, Message: "down"}}
	err = NewClient(StaticConnector(down)).Verify(context.Background())
	require.Equal(t, CodeSendFailed, CodeOf(err))
}

func TestClient_Reset(t *testing.T) {
	t.Parallel()

	var connects atomic.Int32
	tr := TransportFunc(func(context.Context, *Message) (string, error) { return "id", nil })
	c := NewClient(ConnectorFunc(func(context.Context) (Transport, error) {
		connects.Add(1)
		return tr, nil
	}))

	_, err := c.Send(context.Background(), testMessage())
	require.NoError(t, err)
	c.Reset()
	_, err = c.Send(context.Background(), testMessage())
	require.NoError(t, err)
	require.EqualValues(t, 2, connects.Load())
	require.Equal(t, "provider", c.Name())
}
