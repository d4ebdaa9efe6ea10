package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"quiz-client/internal/logger"
)

// DefaultTTL is how long an entry stays readable when no TTL is configured.
const DefaultTTL = 8 * time.Hour

// Backend is a raw persistent key-value store (file, memory, Redis, Postgres).
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// envelope is the stored wrapper. Expiry is unix milliseconds.
type envelope struct {
	Value  string `json:"value"`
	Expiry int64  `json:"expiry"`
}

// Expiring adds a uniform time-to-live to every key written through it.
// Expiry is lazy: an expired entry is removed by the read that notices it.
// No method returns an error; backend and decoding failures are logged and
// read as absent.
type Expiring struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// Option configures an Expiring store.
type Option func(*Expiring)

// WithClock replaces time.Now, for deterministic expiry in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Expiring) { e.now = now }
}

// WithLogger sets the logger used for absorbed failures.
func WithLogger(log *slog.Logger) Option {
	return func(e *Expiring) { e.log = log }
}

// New wraps backend. A non-positive ttl falls back to DefaultTTL.
func New(backend Backend, ttl time.Duration, opts ...Option) *Expiring {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	e := &Expiring{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TTL reports the lifetime applied to every write.
func (e *Expiring) TTL() time.Duration {
	return e.ttl
}

// Set stores value under key, replacing any previous entry and restarting its TTL.
func (e *Expiring) Set(ctx context.Context, key, value string) {
	raw, err := json.Marshal(envelope{
		Value:  value,
		Expiry: e.now().Add(e.ttl).UnixMilli(),
	})
	if err != nil {
		e.log.Error("encode stored entry", logger.Key(key), logger.Error(err))
		return
	}
	if err := e.backend.Set(ctx, key, string(raw)); err != nil {
		e.log.Error("write stored entry", logger.Key(key), logger.Error(err))
	}
}

// Get returns the value under key if it exists and has not expired.
func (e *Expiring) Get(ctx context.Context, key string) (string, bool) {
	raw, ok, err := e.backend.Get(ctx, key)
	if err != nil {
		e.log.Error("read stored entry", logger.Key(key), logger.Error(err))
		return "", false
	}
	if !ok {
		return "", false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		e.log.Warn("discarding malformed stored entry", logger.Key(key), logger.Error(err))
		e.Delete(ctx, key)
		return "", false
	}
	if e.now().UnixMilli() > env.Expiry {
		e.log.Debug("stored entry expired", logger.Key(key))
		e.Delete(ctx, key)
		return "", false
	}
	return env.Value, true
}

// Delete removes key unconditionally.
func (e *Expiring) Delete(ctx context.Context, key string) {
	if err := e.backend.Delete(ctx, key); err != nil {
		e.log.Error("delete stored entry", logger.Key(key), logger.Error(err))
	}
}
