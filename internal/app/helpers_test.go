package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"quiz-client/internal/app"
	"quiz-client/internal/domain"
	"quiz-client/internal/logger"
)

var errUnavailable = errors.New("service unavailable")

// stubGateway records calls and returns canned responses.
type stubGateway struct {
	mu          sync.Mutex
	questions   []domain.Question
	questionErr error
	result      domain.AttemptResult
	submitErr   error
	submitGate  chan struct{}
	finalErr    error
	correct     []domain.CorrectAnswer
	settings    domain.Settings
	settingsErr error

	questionCalls int
	submissions   []domain.AttemptSubmission
	finals        []string
	tokens        []string
	patches       []domain.SettingsPatch
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		questions: []domain.Question{
			{ID: 1, Text: "Pick A", Options: []string{"A", "B", "C"}},
			{ID: 2, Text: "Pick B", Options: []string{"A", "B", "C"}},
		},
		result:   domain.AttemptResult{Score: 1, TimeTaken: 37, CanRetry: true},
		correct:  []domain.CorrectAnswer{{QuestionID: 1, CorrectAnswer: "A"}, {QuestionID: 2, CorrectAnswer: "B"}},
		settings: domain.Settings{IsOpen: true},
	}
}

func (g *stubGateway) Questions(context.Context) ([]domain.Question, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.questionCalls++
	if g.questionErr != nil {
		return nil, g.questionErr
	}
	return append([]domain.Question(nil), g.questions...), nil
}

func (g *stubGateway) SubmitAttempt(ctx context.Context, sub domain.AttemptSubmission) (domain.AttemptResult, error) {
	g.mu.Lock()
	g.submissions = append(g.submissions, sub)
	gate := g.submitGate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.AttemptResult{}, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result, g.submitErr
}

func (g *stubGateway) SubmitFinal(_ context.Context, username string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finals = append(g.finals, username)
	return g.finalErr
}

func (g *stubGateway) CorrectAnswers(_ context.Context, ids []int) ([]domain.CorrectAnswer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.CorrectAnswer(nil), g.correct...), nil
}

func (g *stubGateway) PublicSettings(context.Context) (domain.Settings, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings, g.settingsErr
}

func (g *stubGateway) AdminSettings(_ context.Context, token string) (domain.Settings, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = append(g.tokens, token)
	return g.settings, g.settingsErr
}

func (g *stubGateway) UpdateSettings(_ context.Context, token string, patch domain.SettingsPatch) (domain.Settings, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = append(g.tokens, token)
	g.patches = append(g.patches, patch)
	if g.settingsErr != nil {
		return domain.Settings{}, g.settingsErr
	}
	if patch.IsOpen != nil {
		g.settings.IsOpen = *patch.IsOpen
	}
	return g.settings, nil
}

func (g *stubGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submissions)
}

func (g *stubGateway) lastSubmission() domain.AttemptSubmission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submissions[len(g.submissions)-1]
}

// manualTicker fires only when the test says so.
type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// tickers hands out manual tickers and remembers every one it created.
type tickers struct {
	mu  sync.Mutex
	all []*manualTicker
}

func (t *tickers) new(time.Duration) app.Ticker {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := &manualTicker{ch: make(chan time.Time)}
	t.all = append(t.all, m)
	return m
}

func (t *tickers) live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, m := range t.all {
		if !m.isStopped() {
			n++
		}
	}
	return n
}

func (t *tickers) latest() *manualTicker {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.all[len(t.all)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	gw      *stubGateway
	tickers *tickers
	clock   *fakeClock
	session *app.Session
}

func newFixture(opts ...app.Option) *fixture {
	f := &fixture{gw: newStubGateway(), tickers: &tickers{}, clock: newFakeClock()}
	base := []app.Option{
		app.WithTicker(f.tickers.new),
		app.WithClock(f.clock.Now),
		app.WithLogger(logger.Discard()),
	}
	f.session = app.NewSession(f.gw, append(base, opts...)...)
	return f
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
