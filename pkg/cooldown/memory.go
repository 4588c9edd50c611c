package cooldown

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process cooldown store. Expired windows are removed by a
// background janitor and lazily on read.
type Memory struct {
	until  map[string]time.Time
	now    func() time.Time
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// MemoryOption configures a Memory store.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	now             func() time.Time
	cleanupInterval time.Duration
}

// WithCleanupInterval sets how often expired windows are purged.
// Zero disables the janitor. Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		if d >= 0 {
			o.cleanupInterval = d
		}
	}
}

// WithClock sets the time source. Default: time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewMemory creates an in-memory store. Call Close to stop the janitor.
func NewMemory(opts ...MemoryOption) *Memory {
	o := &memoryOptions{now: time.Now, cleanupInterval: time.Minute}
	for _, opt := range opts {
		opt(o)
	}

	m := &Memory{
		until: make(map[string]time.Time),
		now:   o.now,
		done:  make(chan struct{}),
	}
	if o.cleanupInterval > 0 {
		go m.janitor(o.cleanupInterval)
	}
	return m
}

// Hold starts a window of d for key. A longer window already in place is
// kept; a non-positive d clears the key.
func (m *Memory) Hold(_ context.Context, key string, d time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if d <= 0 {
		delete(m.until, key)
		return nil
	}
	until := m.now().Add(d)
	if cur, ok := m.until[key]; ok && cur.After(until) {
		return nil
	}
	m.until[key] = until
	return nil
}

// Remaining reports how much of the window for key is left.
func (m *Memory) Remaining(_ context.Context, key string) (time.Duration, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	until, ok := m.until[key]
	if !ok {
		return 0, nil
	}
	left := until.Sub(m.now())
	if left <= 0 {
		delete(m.until, key)
		return 0, nil
	}
	return left, nil
}

// Len returns the number of tracked windows, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.until)
}

// Close stops the janitor. Subsequent calls return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}

func (m *Memory) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.purge()
		}
	}
}

func (m *Memory) purge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, until := range m.until {
		if !until.After(now) {
			delete(m.until, key)
		}
	}
}
