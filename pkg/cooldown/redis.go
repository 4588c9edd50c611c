package cooldown

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a cooldown store backed by Redis key expiry.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithPrefix namespaces keys as "<prefix>:cooldown:<key>".
// Default: no prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis creates a Redis-backed store. The client should come from
// pkg/redis.Open.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hold starts a window of d for key. A longer window already in place is
// kept; a non-positive d clears the key.
func (r *Redis) Hold(ctx context.Context, key string, d time.Duration) error {
	if r.client == nil {
		return ErrNilClient
	}
	if key == "" {
		return ErrEmptyKey
	}

	k := r.key(key)
	if d <= 0 {
		if err := r.client.Del(ctx, k).Err(); err != nil {
			return errors.Join(ErrStoreError, err)
		}
		return nil
	}

	ms := d.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	if err := holdScript.Run(ctx, r.client, []string{k}, ms).Err(); err != nil {
		return errors.Join(ErrStoreError, err)
	}
	return nil
}

// holdScript extends the key's expiry only when the new window is longer.
var holdScript = redis.NewScript(`
local cur = redis.call('PTTL', KEYS[1])
if cur < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[1], '1', 'PX', ARGV[1])
end
return 1
`)

// Remaining reports how much of the window for key is left.
func (r *Redis) Remaining(ctx context.Context, key string) (time.Duration, error) {
	if r.client == nil {
		return 0, ErrNilClient
	}
	if key == "" {
		return 0, ErrEmptyKey
	}

	ttl, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, errors.Join(ErrStoreError, err)
	}
	// -2 means missing, -1 means no expiry; neither is an active window.
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return "cooldown:" + key
	}
	return r.prefix + ":cooldown:" + key
}
