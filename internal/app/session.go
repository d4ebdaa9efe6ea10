package app

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"quiz-client/internal/domain"
	"quiz-client/internal/logger"
)

// DefaultDuration is the length of one attempt when none is configured.
const DefaultDuration = 120 * time.Second

// Gateway is the remote quiz service as seen by a Session.
type Gateway interface {
	Questions(ctx context.Context) ([]domain.Question, error)
	SubmitAttempt(ctx context.Context, submission domain.AttemptSubmission) (domain.AttemptResult, error)
	SubmitFinal(ctx context.Context, username string) error
	CorrectAnswers(ctx context.Context, questionIDs []int) ([]domain.CorrectAnswer, error)
	PublicSettings(ctx context.Context) (domain.Settings, error)
	AdminSettings(ctx context.Context, token string) (domain.Settings, error)
	UpdateSettings(ctx context.Context, token string, patch domain.SettingsPatch) (domain.Settings, error)
}

// State is a point-in-time copy of a participant's session.
type State struct {
	Identity              string
	Phase                 domain.Phase
	Questions             []domain.Question
	CurrentIndex          int
	Answers               map[int]string
	Score                 int
	ElapsedSeconds        int
	AttemptsUsed          int
	CanRetry              bool
	HasSubmittedFinal     bool
	HasReviewedCorrection bool
	TimeRemainingSeconds  int
	StartedAt             time.Time
	AdminCredential       string
	Settings              *domain.Settings

	// Not persisted.
	Submitting   bool
	TimerRunning bool
	SubmitFailed bool
}

// CurrentQuestion returns the question at CurrentIndex, if any.
func (s State) CurrentQuestion() (domain.Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return domain.Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// DefaultState is the state of a participant who has never registered.
func DefaultState(duration time.Duration) State {
	return State{
		Phase:                domain.PhaseRegistering,
		Answers:              map[int]string{},
		CanRetry:             true,
		TimeRemainingSeconds: int(duration / time.Second),
	}
}

// Session is a participant's quiz session. Every exported method applies its
// transition atomically under one lock and returns the resulting state; the
// lock is never held across a gateway call. Failures are logged and folded
// into the state rather than returned.
type Session struct {
	gateway   Gateway
	duration  time.Duration
	now       func() time.Time
	newTicker NewTickerFunc
	log       *slog.Logger

	mu         sync.Mutex
	st         State
	submitting bool
	stalled    bool
	timer      *countdown
	timerCtx   context.Context
	changed    chan struct{}
	seeded     bool
}

// Option configures a Session.
type Option func(*Session)

// WithDuration sets the attempt length.
func WithDuration(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithTicker replaces the one-second tick source.
func WithTicker(fn NewTickerFunc) Option {
	return func(s *Session) { s.newTicker = fn }
}

// WithLogger sets the session logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithState seeds the session, typically from a restored Snapshot.
// A restored loading phase falls back to idle: the fetch it waited on is gone.
func WithState(st State) Option {
	return func(s *Session) {
		st.Submitting = false
		st.TimerRunning = false
		st.SubmitFailed = false
		if st.Answers == nil {
			st.Answers = map[int]string{}
		}
		if !st.Phase.Valid() {
			st.Phase = domain.PhaseRegistering
		}
		if st.Phase == domain.PhaseLoading {
			st.Phase = domain.PhaseIdle
		}
		s.st = st
		s.seeded = true
	}
}

func NewSession(gateway Gateway, opts ...Option) *Session {
	s := &Session{
		gateway:   gateway,
		duration:  DefaultDuration,
		now:       time.Now,
		newTicker: NewRealTicker,
		log:       slog.Default(),
		timerCtx:  context.Background(),
		changed:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.seeded {
		s.st = DefaultState(s.duration)
	}
	return s
}

// Changed signals after every mutation. Signals coalesce: one pending signal
// stands for any number of changes, so readers should take State() afresh.
func (s *Session) Changed() <-chan struct{} {
	return s.changed
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Duration is the configured attempt length.
func (s *Session) Duration() time.Duration {
	return s.duration
}

// Register records the participant's name and moves to idle. Callers check
// that the name is non-empty, available, and that no final score was submitted.
func (s *Session) Register(name string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Identity = name
	s.st.Phase = domain.PhaseIdle
	s.notifyLocked()
	return s.snapshotLocked()
}

// StartAttempt fetches a question set and starts the countdown. It returns
// immediately if an attempt is already loading or active, and moves to denied
// when the final score is locked in or the attempt cap is reached.
func (s *Session) StartAttempt(ctx context.Context) State {
	s.mu.Lock()
	if s.st.Phase == domain.PhaseLoading || s.st.Phase == domain.PhaseActive {
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st
	}
	s.st.Phase = domain.PhaseLoading
	s.notifyLocked()

	if s.st.HasSubmittedFinal || s.st.AttemptsUsed >= domain.MaxAttempts {
		s.st.Phase = domain.PhaseDenied
		s.notifyLocked()
		s.log.Info("attempt denied",
			logger.Username(s.st.Identity),
			slog.Int("attempts_used", s.st.AttemptsUsed),
			slog.Bool("final_submitted", s.st.HasSubmittedFinal))
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st
	}
	s.mu.Unlock()

	questions, err := s.gateway.Questions(ctx)
	if err == nil && len(questions) == 0 {
		err = domain.ErrEmptyQuestionSet
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.Phase != domain.PhaseLoading {
		// Reset while the fetch was in flight; the result belongs to nobody.
		s.log.Warn("discarding question set for abandoned attempt", logger.Phase(s.st.Phase))
		return s.snapshotLocked()
	}
	if err != nil {
		s.log.Error("failed to fetch questions", logger.Error(err))
		s.st.Phase = domain.PhaseIdle
		s.notifyLocked()
		return s.snapshotLocked()
	}

	s.st.AttemptsUsed++
	s.st.Questions = append([]domain.Question(nil), questions...)
	s.st.CurrentIndex = 0
	s.st.Score = 0
	s.st.Answers = map[int]string{}
	s.st.StartedAt = s.now()
	s.st.TimeRemainingSeconds = s.durationSeconds()
	s.st.Phase = domain.PhaseActive
	s.stalled = false
	s.startTimerLocked(ctx)
	s.notifyLocked()
	s.log.Info("attempt started",
		logger.Username(s.st.Identity),
		slog.Int("attempt", s.st.AttemptsUsed),
		slog.Int("questions", len(questions)))
	return s.snapshotLocked()
}

// SelectAnswer records option as the answer to questionID, replacing any earlier choice.
func (s *Session) SelectAnswer(questionID int, option string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Answers[questionID] = option
	s.notifyLocked()
	return s.snapshotLocked()
}

// AdvanceQuestion moves to the next question, or submits the attempt when the
// current question is the last one.
func (s *Session) AdvanceQuestion(ctx context.Context) State {
	s.mu.Lock()
	if s.st.CurrentIndex < len(s.st.Questions)-1 {
		s.st.CurrentIndex++
		s.notifyLocked()
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st
	}
	s.mu.Unlock()
	return s.SubmitAttempt(ctx)
}

// DecrementTime is one countdown step. At zero it forces submission of an
// active attempt; SubmitAttempt's guard keeps that to a single request.
func (s *Session) DecrementTime(ctx context.Context) State {
	s.mu.Lock()
	if s.decrementLocked() {
		s.mu.Unlock()
		return s.SubmitAttempt(ctx)
	}
	st := s.snapshotLocked()
	s.mu.Unlock()
	return st
}

// decrementLocked applies one step and reports whether a forced submit is due.
func (s *Session) decrementLocked() bool {
	if s.st.TimeRemainingSeconds > 0 {
		s.st.TimeRemainingSeconds--
		s.notifyLocked()
		return false
	}
	return !s.submitting && s.st.Phase == domain.PhaseActive
}

// onTick handles a tick from countdown c. Ticks from a handle that has since
// been stopped are dropped.
func (s *Session) onTick(c *countdown) {
	s.mu.Lock()
	if s.timer != c {
		s.mu.Unlock()
		return
	}
	submit := s.decrementLocked()
	ctx := s.timerCtx
	s.mu.Unlock()
	if submit {
		s.log.Info("time is up, submitting attempt")
		s.SubmitAttempt(ctx)
	}
}

// SubmitAttempt sends the current answers for scoring. It is a no-op while a
// submission is in flight or once the attempt is finished.
func (s *Session) SubmitAttempt(ctx context.Context) State {
	s.mu.Lock()
	if s.st.Phase == domain.PhaseFinished || s.submitting {
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st
	}
	s.submitting = true
	s.stalled = false
	s.stopTimerLocked()

	elapsed := s.durationSeconds()
	if s.st.TimeRemainingSeconds != 0 {
		elapsed = int(math.Round(s.now().Sub(s.st.StartedAt).Seconds()))
	}
	submission := domain.AttemptSubmission{
		Username:  s.st.Identity,
		Answers:   answerList(s.st.Answers),
		TimeTaken: elapsed,
	}
	s.notifyLocked()
	s.mu.Unlock()

	result, err := s.gateway.SubmitAttempt(ctx, submission)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case err == nil:
		s.st.Score = result.Score
		s.st.ElapsedSeconds = result.TimeTaken
		s.st.CanRetry = result.CanRetry
		s.st.Phase = domain.PhaseFinished
		s.log.Info("attempt scored",
			logger.Username(submission.Username),
			slog.Int("score", result.Score),
			slog.Int("time_taken", result.TimeTaken),
			slog.Bool("can_retry", result.CanRetry))
	case errors.Is(err, domain.ErrMaxAttempts):
		s.st.Phase = domain.PhaseDenied
		s.log.Warn("attempt refused: maximum attempts reached", logger.Username(submission.Username))
	default:
		// The attempt stays active without a countdown until the participant
		// submits again or the session is restored.
		s.stalled = true
		s.log.Error("failed to submit attempt", logger.Username(submission.Username), logger.Error(err))
	}
	s.submitting = false
	s.notifyLocked()
	return s.snapshotLocked()
}

// SubmitFinalScore locks in the participant's best score. It needs an identity
// and a scored attempt; repeated calls are forwarded and left to the server.
func (s *Session) SubmitFinalScore(ctx context.Context) State {
	s.mu.Lock()
	username := s.st.Identity
	var precondition error
	switch {
	case username == "":
		precondition = domain.ErrNotRegistered
	case s.st.Phase != domain.PhaseFinished:
		precondition = domain.ErrNoAttempt
	}
	if precondition != nil {
		s.log.Warn("final submission skipped", logger.Phase(s.st.Phase), logger.Error(precondition))
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st
	}
	s.mu.Unlock()

	err := s.gateway.SubmitFinal(ctx, username)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Error("failed to submit final score", logger.Username(username), logger.Error(err))
		return s.snapshotLocked()
	}
	s.st.HasSubmittedFinal = true
	s.notifyLocked()
	s.log.Info("final score submitted", logger.Username(username), slog.Int("score", s.st.Score))
	return s.snapshotLocked()
}

// ResetQuiz prepares a retry. Attempt and final-submission counters survive.
func (s *Session) ResetQuiz() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.stalled = false
	s.st.Phase = domain.PhaseIdle
	s.st.CurrentIndex = 0
	s.st.Score = 0
	s.st.Answers = map[int]string{}
	s.st.HasReviewedCorrection = false
	s.notifyLocked()
	return s.snapshotLocked()
}

// MarkReviewed latches that the correction view was shown.
func (s *Session) MarkReviewed() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.HasReviewedCorrection = true
	s.notifyLocked()
	return s.snapshotLocked()
}

// FetchCorrection marks the attempt as reviewed and pairs each question of the
// current set with the participant's choice and the expected answer.
func (s *Session) FetchCorrection(ctx context.Context) ([]domain.ReviewItem, error) {
	st := s.MarkReviewed()
	if len(st.Questions) == 0 {
		return nil, domain.ErrNoAttempt
	}
	ids := make([]int, 0, len(st.Questions))
	for _, q := range st.Questions {
		ids = append(ids, q.ID)
	}

	correct, err := s.gateway.CorrectAnswers(ctx, ids)
	if err != nil {
		s.log.Error("failed to fetch correct answers", logger.Error(err))
		return nil, err
	}
	expected := make(map[int]string, len(correct))
	for _, c := range correct {
		expected[c.QuestionID] = c.CorrectAnswer
	}

	items := make([]domain.ReviewItem, 0, len(st.Questions))
	for _, q := range st.Questions {
		chosen := st.Answers[q.ID]
		want, known := expected[q.ID]
		items = append(items, domain.ReviewItem{
			Question:  q,
			Chosen:    chosen,
			Correct:   want,
			IsCorrect: known && chosen != "" && chosen == want,
		})
	}
	return items, nil
}

// SetAdminCredential stores the bearer token used for admin operations.
func (s *Session) SetAdminCredential(token string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.AdminCredential = token
	s.notifyLocked()
	return s.snapshotLocked()
}

// FetchPublicSettings refreshes the quiz settings from the public endpoint.
func (s *Session) FetchPublicSettings(ctx context.Context) State {
	settings, err := s.gateway.PublicSettings(ctx)
	if err != nil {
		s.log.Error("failed to fetch public quiz settings", logger.Error(err))
		return s.State()
	}
	return s.ApplySettings(settings)
}

// FetchAdminSettings refreshes the quiz settings using the admin credential.
func (s *Session) FetchAdminSettings(ctx context.Context) State {
	token, ok := s.adminToken()
	if !ok {
		return s.State()
	}
	settings, err := s.gateway.AdminSettings(ctx, token)
	if err != nil {
		s.log.Error("failed to fetch admin quiz settings", logger.Error(err))
		return s.State()
	}
	return s.ApplySettings(settings)
}

// UpdateSettings applies patch remotely and adopts the server's result.
func (s *Session) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) State {
	token, ok := s.adminToken()
	if !ok {
		return s.State()
	}
	settings, err := s.gateway.UpdateSettings(ctx, token, patch)
	if err != nil {
		s.log.Error("failed to update quiz settings", logger.Error(err))
		return s.State()
	}
	return s.ApplySettings(settings)
}

// ApplySettings adopts settings learned elsewhere, e.g. from the push channel.
func (s *Session) ApplySettings(settings domain.Settings) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Settings = &settings
	s.notifyLocked()
	return s.snapshotLocked()
}

// Resume restarts the countdown of an attempt restored mid-flight. Time spent
// while no process was running counts against the attempt; one that ran out
// meanwhile is submitted straight away. An attempt whose submission failed in
// this process is left alone.
func (s *Session) Resume(ctx context.Context) State {
	s.mu.Lock()
	if s.st.Phase != domain.PhaseActive || s.timer != nil || s.submitting || s.stalled {
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st
	}
	if !s.st.StartedAt.IsZero() {
		left := s.durationSeconds() - int(s.now().Sub(s.st.StartedAt)/time.Second)
		if left < s.st.TimeRemainingSeconds {
			s.st.TimeRemainingSeconds = max(left, 0)
			s.notifyLocked()
		}
	}
	if s.st.TimeRemainingSeconds == 0 {
		s.mu.Unlock()
		s.log.Info("attempt expired while away, submitting")
		return s.SubmitAttempt(ctx)
	}
	s.startTimerLocked(ctx)
	s.log.Info("resumed attempt", slog.Int("time_remaining", s.st.TimeRemainingSeconds))
	st := s.snapshotLocked()
	s.mu.Unlock()
	return st
}

// Close stops the countdown.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

func (s *Session) adminToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.AdminCredential == "" {
		s.log.Warn("admin credential not set")
		return "", false
	}
	return s.st.AdminCredential, true
}

func (s *Session) startTimerLocked(ctx context.Context) {
	s.stopTimerLocked()
	s.timerCtx = context.WithoutCancel(ctx)
	s.timer = startCountdown(s.newTicker(time.Second), s.onTick)
}

// stopTimerLocked is the single release path for the countdown.
func (s *Session) stopTimerLocked() {
	if s.timer == nil {
		return
	}
	s.timer.stop()
	s.timer = nil
}

func (s *Session) durationSeconds() int {
	return int(s.duration / time.Second)
}

func (s *Session) notifyLocked() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Session) snapshotLocked() State {
	st := s.st
	st.Questions = append([]domain.Question(nil), s.st.Questions...)
	st.Answers = make(map[int]string, len(s.st.Answers))
	for k, v := range s.st.Answers {
		st.Answers[k] = v
	}
	if s.st.Settings != nil {
		settings := *s.st.Settings
		st.Settings = &settings
	}
	st.Submitting = s.submitting
	st.TimerRunning = s.timer != nil
	st.SubmitFailed = s.stalled
	return st
}

// answerList orders answers by question ID for a stable request body.
func answerList(answers map[int]string) []domain.Answer {
	out := make([]domain.Answer, 0, len(answers))
	for id, answer := range answers {
		out = append(out, domain.Answer{QuestionID: id, Answer: answer})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}
