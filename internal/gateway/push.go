package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"quiz-client/internal/logger"
)

// Push channel event types.
const (
	EventParticipantCountInit = "participant_count_init"
	EventLeaderboardInit      = "leaderboard_init"
	EventUserRegistered       = "user_registered"
	EventAttemptSubmitted     = "attempt_submitted"
	EventLeaderboardUpdated   = "leaderboard_updated"
	EventSettingsUpdated      = "quiz_settings_updated"
)

// Event is one fire-and-forget notification from the push channel.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PushClient keeps a websocket subscription open and hands every event to a
// single handler. It reconnects after a fixed delay until its context ends.
type PushClient struct {
	url   string
	retry time.Duration
	dial  *websocket.Dialer
	log   *slog.Logger
}

// PushOption configures a PushClient.
type PushOption func(*PushClient)

// WithRetryDelay sets the pause between reconnect attempts.
func WithRetryDelay(d time.Duration) PushOption {
	return func(p *PushClient) { p.retry = d }
}

// WithPushLogger sets the connection logger.
func WithPushLogger(log *slog.Logger) PushOption {
	return func(p *PushClient) { p.log = log }
}

func NewPushClient(pushURL string, opts ...PushOption) *PushClient {
	p := &PushClient{
		url:   pushURL,
		retry: 3 * time.Second,
		dial:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PushURL derives the websocket endpoint from an HTTP base URL.
func PushURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}

// Run delivers events to handle until ctx is cancelled. It returns ctx.Err().
func (p *PushClient) Run(ctx context.Context, handle func(Event)) error {
	for {
		err := p.listen(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warn("push channel disconnected", slog.String("url", p.url), logger.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retry):
		}
	}
}

// listen serves a single connection.
func (p *PushClient) listen(ctx context.Context, handle func(Event)) error {
	conn, _, err := p.dial.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	defer conn.Close()
	p.log.Info("push channel connected", slog.String("url", p.url))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				p.log.Warn("skipping malformed push event", logger.Error(err))
				continue
			}
			return err
		}
		if event.Type == "" {
			continue
		}
		handle(event)
	}
}
