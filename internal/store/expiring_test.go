package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-client/internal/infra/memory"
	"quiz-client/internal/logger"
	"quiz-client/internal/store"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(ttl time.Duration) (*store.Expiring, *memory.Backend, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	backend := memory.NewBackend()
	s := store.New(backend, ttl, store.WithClock(clock.Now), store.WithLogger(logger.Discard()))
	return s, backend, clock
}

func TestExpiringRoundTripAndCleanup(t *testing.T) {
	ctx := context.Background()
	s, backend, clock := newTestStore(time.Hour)

	values := []string{"", "plain", `{"username":"alice","attempts":2}`, "multi\nline ✓"}
	for _, v := range values {
		s.Set(ctx, "quiz-storage", v)
		got, ok := s.Get(ctx, "quiz-storage")
		if !ok || got != v {
			t.Fatalf("expected %q back, got %q ok=%v", v, got, ok)
		}
	}

	clock.Advance(time.Hour)
	if _, ok := s.Get(ctx, "quiz-storage"); !ok {
		t.Fatalf("entry must still be readable exactly at expiry")
	}

	clock.Advance(time.Millisecond)
	if _, ok := s.Get(ctx, "quiz-storage"); ok {
		t.Fatalf("expected expired entry to read as absent")
	}
	if _, ok, _ := backend.Get(ctx, "quiz-storage"); ok {
		t.Fatalf("expected expired entry to be removed from the backend")
	}
}

func TestExpiringSetRestartsTTL(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(time.Hour)

	s.Set(ctx, "k", "a")
	clock.Advance(50 * time.Minute)
	s.Set(ctx, "k", "b")
	clock.Advance(50 * time.Minute)

	got, ok := s.Get(ctx, "k")
	if !ok || got != "b" {
		t.Fatalf("expected overwritten value with fresh ttl, got %q ok=%v", got, ok)
	}
}

func TestExpiringMalformedEntryIsDeleted(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(time.Hour)

	_ = backend.Set(ctx, "quiz-storage", "{not json")
	if _, ok := s.Get(ctx, "quiz-storage"); ok {
		t.Fatalf("expected malformed entry to read as absent")
	}
	if backend.Len() != 0 {
		t.Fatalf("expected malformed entry to be deleted")
	}
}

func TestExpiringDefaultTTL(t *testing.T) {
	s, _, _ := newTestStore(0)
	if s.TTL() != store.DefaultTTL {
		t.Fatalf("expected default ttl, got %v", s.TTL())
	}
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("unavailable")
}
func (failingBackend) Set(context.Context, string, string) error { return errors.New("unavailable") }
func (failingBackend) Delete(context.Context, string) error      { return errors.New("unavailable") }

func TestExpiringAbsorbsBackendErrors(t *testing.T) {
	ctx := context.Background()
	s := store.New(failingBackend{}, time.Hour, store.WithLogger(logger.Discard()))

	s.Set(ctx, "k", "v")
	s.Delete(ctx, "k")
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatalf("expected failing backend to read as absent")
	}
}
