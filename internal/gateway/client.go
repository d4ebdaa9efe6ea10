package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"quiz-client/internal/domain"
	"quiz-client/internal/logger"
)

const maxResponseBytes = 1 << 20

// Client talks to the quiz API over HTTP.
// Unauthenticated GETs (settings, questions, leaderboard) are collapsed with
// singleflight so a burst of callers produces one request; callers must treat
// returned slices as read-only.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
	sf      singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type attemptResponse struct {
	statusResponse
	domain.AttemptResult
}

type correctAnswersResponse struct {
	statusResponse
	Answers []domain.CorrectAnswer `json:"answers"`
}

type capturedIDsResponse struct {
	statusResponse
	CUIDs []domain.CapturedID `json:"cuids"`
}

func (c *Client) PublicSettings(ctx context.Context) (domain.Settings, error) {
	v, err := c.shared(ctx, "GET /api/settings", func(ctx context.Context) (interface{}, error) {
		var settings domain.Settings
		err := c.do(ctx, "fetch settings", http.MethodGet, "/api/settings", "", nil, &settings)
		return settings, err
	})
	if err != nil {
		return domain.Settings{}, err
	}
	return v.(domain.Settings), nil
}

func (c *Client) AdminSettings(ctx context.Context, token string) (domain.Settings, error) {
	var settings domain.Settings
	err := c.do(ctx, "fetch admin settings", http.MethodGet, "/api/admin/settings", token, nil, &settings)
	return settings, err
}

func (c *Client) UpdateSettings(ctx context.Context, token string, patch domain.SettingsPatch) (domain.Settings, error) {
	var settings domain.Settings
	err := c.do(ctx, "update settings", http.MethodPut, "/api/admin/settings", token, patch, &settings)
	return settings, err
}

// CheckUsername returns nil when the name is free, or a *RejectedError carrying the reason.
func (c *Client) CheckUsername(ctx context.Context, username string) error {
	var resp statusResponse
	if err := c.do(ctx, "check username", http.MethodPost, "/api/check-username", "", map[string]string{"username": username}, &resp); err != nil {
		return err
	}
	return rejection("check username", resp)
}

func (c *Client) Questions(ctx context.Context) ([]domain.Question, error) {
	v, err := c.shared(ctx, "GET /api/questions", func(ctx context.Context) (interface{}, error) {
		var questions []domain.Question
		err := c.do(ctx, "fetch questions", http.MethodGet, "/api/questions", "", nil, &questions)
		return questions, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Question), nil
}

func (c *Client) SubmitAttempt(ctx context.Context, submission domain.AttemptSubmission) (domain.AttemptResult, error) {
	var resp attemptResponse
	if err := c.do(ctx, "submit attempt", http.MethodPost, "/api/submit-attempt", "", submission, &resp); err != nil {
		return domain.AttemptResult{}, err
	}
	if err := rejection("submit attempt", resp.statusResponse); err != nil {
		return domain.AttemptResult{}, err
	}
	return resp.AttemptResult, nil
}

func (c *Client) SubmitFinal(ctx context.Context, username string) error {
	var resp statusResponse
	if err := c.do(ctx, "submit final", http.MethodPost, "/api/submit-final", "", map[string]string{"username": username}, &resp); err != nil {
		return err
	}
	return rejection("submit final", resp)
}

func (c *Client) CorrectAnswers(ctx context.Context, questionIDs []int) ([]domain.CorrectAnswer, error) {
	var resp correctAnswersResponse
	body := map[string][]int{"questionIds": questionIDs}
	if err := c.do(ctx, "fetch answers", http.MethodPost, "/api/answers", "", body, &resp); err != nil {
		return nil, err
	}
	if err := rejection("fetch answers", resp.statusResponse); err != nil {
		return nil, err
	}
	return resp.Answers, nil
}

func (c *Client) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	v, err := c.shared(ctx, "GET /api/leaderboard", func(ctx context.Context) (interface{}, error) {
		var entries []domain.LeaderboardEntry
		err := c.do(ctx, "fetch leaderboard", http.MethodGet, "/api/leaderboard", "", nil, &entries)
		return entries, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.LeaderboardEntry), nil
}

func (c *Client) CapturedIDs(ctx context.Context) ([]domain.CapturedID, error) {
	var resp capturedIDsResponse
	if err := c.do(ctx, "fetch cuids", http.MethodGet, "/api/cuids", "", nil, &resp); err != nil {
		return nil, err
	}
	if err := rejection("fetch cuids", resp.statusResponse); err != nil {
		return nil, err
	}
	return resp.CUIDs, nil
}

// shared runs fn once for all concurrent callers of key. The request itself
// ignores any single caller's cancellation; each caller stops waiting when its
// own ctx ends.
func (c *Client) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func rejection(op string, resp statusResponse) error {
	if resp.Success {
		return nil
	}
	return &RejectedError{Op: op, Status: http.StatusOK, Message: resp.Message}
}

// do sends one JSON request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	c.log.Debug("gateway request",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
		logger.RequestID(requestID),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var status statusResponse
		if json.Unmarshal(raw, &status) == nil && status.Message != "" {
			return &RejectedError{Op: op, Status: resp.StatusCode, Message: status.Message}
		}
		return &StatusError{Op: op, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// IsRejected reports whether err is an application-level refusal and returns its message.
func IsRejected(err error) (string, bool) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Message, true
	}
	return "", false
}
