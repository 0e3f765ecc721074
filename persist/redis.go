package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Backend storing the snapshot under one Redis key. With a TTL
// the key expires on its own, which bounds how long an abandoned session
// survives on shared infrastructure.
type Redis struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

// RedisOption configures a Redis backend.
type RedisOption func(*Redis)

// WithKey sets the key. Default: DefaultKey.
func WithKey(key string) RedisOption {
	return func(r *Redis) { r.key = key }
}

// WithTTL sets an expiry on every write. Zero means no expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// NewRedis returns a Redis backend using rdb.
func NewRedis(rdb redis.UniversalClient, opts ...RedisOption) (*Redis, error) {
	if rdb == nil {
		return nil, ErrNilBackend
	}
	r := &Redis{rdb: rdb, key: DefaultKey}
	for _, opt := range opts {
		opt(r)
	}
	if r.key == "" {
		return nil, ErrEmptyKey
	}
	return r, nil
}

// Key returns the Redis key in use.
func (r *Redis) Key() string {
	return r.key
}

// Get implements Backend.
func (r *Redis) Get(ctx context.Context) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return data, nil
}

// Put implements Backend.
func (r *Redis) Put(ctx context.Context, data []byte) error {
	if err := r.rdb.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// Delete implements Backend.
func (r *Redis) Delete(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.key, err)
	}
	return nil
}
