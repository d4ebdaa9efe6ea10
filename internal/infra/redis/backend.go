package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-client/internal/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend is a Redis implementation of store.Backend.
// Keys are namespaced with a prefix so several clients can share one database.
// When ttl is positive every write also carries a native key expiry, letting
// Redis reclaim entries nobody reads again; the envelope expiry stays authoritative.
type Backend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewBackend(client *redis.Client, prefix string, ttl time.Duration) *Backend {
	return &Backend{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := b.client.Get(ctx, b.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	return b.client.Set(ctx, b.key(key), value, b.ttl).Err()
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.key(key)).Err()
}

// Ping verifies connectivity; used at startup so a dead Redis fails fast.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Backend) key(key string) string {
	return b.prefix + key
}
