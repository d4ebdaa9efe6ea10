package gateway_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-client/internal/domain"
	"quiz-client/internal/gateway"
	"quiz-client/internal/gateway/gatewaytest"
	"quiz-client/internal/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []gateway.Event
}

func (r *recorder) handle(e gateway.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) last() gateway.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func TestPushClientReceivesEvents(t *testing.T) {
	srv := gatewaytest.New()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	push := gateway.NewPushClient(srv.PushURL(), gateway.WithPushLogger(logger.Discard()))
	done := make(chan error, 1)
	go func() { done <- push.Run(ctx, rec.handle) }()

	require.Eventually(t, func() bool { return len(rec.types()) >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{gateway.EventParticipantCountInit, gateway.EventLeaderboardInit}, rec.types()[:2])

	srv.Broadcast(gateway.EventSettingsUpdated, domain.Settings{IsOpen: false})
	require.Eventually(t, func() bool { return len(rec.types()) == 3 }, 2*time.Second, 10*time.Millisecond)

	event := rec.last()
	assert.Equal(t, gateway.EventSettingsUpdated, event.Type)
	var settings domain.Settings
	require.NoError(t, json.Unmarshal(event.Payload, &settings))
	assert.False(t, settings.IsOpen)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("push client did not stop after cancel")
	}
}

func TestPushClientReconnects(t *testing.T) {
	srv := gatewaytest.New()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	push := gateway.NewPushClient(srv.PushURL(),
		gateway.WithRetryDelay(10*time.Millisecond),
		gateway.WithPushLogger(logger.Discard()))
	go func() { _ = push.Run(ctx, rec.handle) }()

	require.Eventually(t, func() bool { return srv.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	srv.DropSubscribers()

	// A fresh connection replays both init events.
	require.Eventually(t, func() bool { return len(rec.types()) >= 4 }, 2*time.Second, 10*time.Millisecond)
}

func TestPushURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:3000":     "ws://localhost:3000/ws",
		"https://quiz.example.com/": "wss://quiz.example.com/ws",
		"https://example.com/api":   "wss://example.com/api/ws",
	}
	for base, want := range cases {
		got, err := gateway.PushURL(base, "/ws")
		require.NoError(t, err)
		assert.Equal(t, want, got, base)
	}
}
