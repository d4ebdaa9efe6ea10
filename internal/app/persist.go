package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"quiz-client/internal/domain"
	"quiz-client/internal/logger"
)

// StorageKey is where the session snapshot lives.
const StorageKey = "quiz-storage"

// KV is the expiring store the Persister writes through.
type KV interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
	Delete(ctx context.Context, key string)
}

// Snapshot is the persisted subset of State. The in-flight submission flag and
// the countdown handle are never stored.
type Snapshot struct {
	Username           string            `json:"username,omitempty"`
	Phase              domain.Phase      `json:"quizState"`
	Questions          []domain.Question `json:"questions"`
	CurrentIndex       int               `json:"currentQuestionIndex"`
	Answers            []domain.Answer   `json:"answers"`
	Score              int               `json:"score"`
	TimeTaken          int               `json:"time_taken"`
	CanRetry           bool              `json:"can_retry"`
	Attempts           int               `json:"attempts"`
	HasSubmitted       bool              `json:"hasSubmitted"`
	HasReviewedAnswers bool              `json:"hasReviewedAnswers"`
	TimeLeft           int               `json:"timeLeft"`
	AttemptStartedAt   int64             `json:"attemptStartedAt,omitempty"`
	AdminKey           string            `json:"adminKey,omitempty"`
	QuizSettings       *domain.Settings  `json:"quizSettings"`
}

// SnapshotOf extracts the persisted fields of st.
func SnapshotOf(st State) Snapshot {
	snap := Snapshot{
		Username:           st.Identity,
		Phase:              st.Phase,
		Questions:          st.Questions,
		CurrentIndex:       st.CurrentIndex,
		Answers:            answerList(st.Answers),
		Score:              st.Score,
		TimeTaken:          st.ElapsedSeconds,
		CanRetry:           st.CanRetry,
		Attempts:           st.AttemptsUsed,
		HasSubmitted:       st.HasSubmittedFinal,
		HasReviewedAnswers: st.HasReviewedCorrection,
		TimeLeft:           st.TimeRemainingSeconds,
		AdminKey:           st.AdminCredential,
		QuizSettings:       st.Settings,
	}
	if !st.StartedAt.IsZero() {
		snap.AttemptStartedAt = st.StartedAt.UnixMilli()
	}
	return snap
}

// State rebuilds a State from the snapshot.
func (s Snapshot) State() State {
	st := State{
		Identity:              s.Username,
		Phase:                 s.Phase,
		Questions:             s.Questions,
		CurrentIndex:          s.CurrentIndex,
		Answers:               make(map[int]string, len(s.Answers)),
		Score:                 s.Score,
		ElapsedSeconds:        s.TimeTaken,
		AttemptsUsed:          s.Attempts,
		CanRetry:              s.CanRetry,
		HasSubmittedFinal:     s.HasSubmitted,
		HasReviewedCorrection: s.HasReviewedAnswers,
		TimeRemainingSeconds:  s.TimeLeft,
		AdminCredential:       s.AdminKey,
		Settings:              s.QuizSettings,
	}
	for _, a := range s.Answers {
		st.Answers[a.QuestionID] = a.Answer
	}
	if s.AttemptStartedAt != 0 {
		st.StartedAt = time.UnixMilli(s.AttemptStartedAt)
	}
	return st
}

// Persister saves and restores session snapshots through an expiring store.
type Persister struct {
	kv  KV
	key string
	log *slog.Logger
}

func NewPersister(kv KV, log *slog.Logger) *Persister {
	if log == nil {
		log = slog.Default()
	}
	return &Persister{kv: kv, key: StorageKey, log: log}
}

// Load returns the stored snapshot. ok is false when nothing usable is stored
// (absent, expired or malformed); a malformed entry is removed.
func (p *Persister) Load(ctx context.Context) (Snapshot, bool) {
	raw, ok := p.kv.Get(ctx, p.key)
	if !ok {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		p.log.Warn("discarding unreadable session snapshot", logger.Key(p.key), logger.Error(err))
		p.kv.Delete(ctx, p.key)
		return Snapshot{}, false
	}
	return snap, true
}

// Save writes the persisted subset of st.
func (p *Persister) Save(ctx context.Context, st State) {
	raw, err := json.Marshal(SnapshotOf(st))
	if err != nil {
		p.log.Error("encode session snapshot", logger.Error(err))
		return
	}
	p.kv.Set(ctx, p.key, string(raw))
}

// Clear forgets the stored session.
func (p *Persister) Clear(ctx context.Context) {
	p.kv.Delete(ctx, p.key)
}

// Run saves the session after every change until ctx ends, then flushes once
// more so the last transition is not lost.
func (p *Persister) Run(ctx context.Context, s *Session) {
	for {
		select {
		case <-ctx.Done():
			p.Save(context.WithoutCancel(ctx), s.State())
			return
		case <-s.Changed():
			p.Save(ctx, s.State())
		}
	}
}
