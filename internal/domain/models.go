package domain

import "time"

// MaxAttempts is the number of scored attempts a participant may start.
const MaxAttempts = 3

// Phase is the discrete state of a participant's quiz session.
type Phase string

const (
	PhaseRegistering Phase = "registering"
	PhaseIdle        Phase = "idle"
	PhaseLoading     Phase = "loading"
	PhaseActive      Phase = "active"
	PhaseFinished    Phase = "finished"
	PhaseDenied      Phase = "denied"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseRegistering, PhaseIdle, PhaseLoading, PhaseActive, PhaseFinished, PhaseDenied:
		return true
	}
	return false
}

// Question is a multiple-choice question as served by the quiz API.
type Question struct {
	ID      int      `json:"id"`
	Text    string   `json:"question_text"`
	Options []string `json:"options"`
}

// Answer is a single chosen option for a question.
type Answer struct {
	QuestionID int    `json:"questionId"`
	Answer     string `json:"answer"`
}

// AttemptSubmission is what a participant sends when an attempt ends.
type AttemptSubmission struct {
	Username  string   `json:"username"`
	Answers   []Answer `json:"answers"`
	TimeTaken int      `json:"time_taken"`
}

// AttemptResult is the scorer's verdict for a submitted attempt.
type AttemptResult struct {
	Score     int  `json:"score"`
	TimeTaken int  `json:"time_taken"`
	CanRetry  bool `json:"can_retry"`
}

// Settings is the remote quiz configuration.
type Settings struct {
	IsOpen bool `json:"is_open"`
}

// SettingsPatch is a partial settings update; nil fields are left untouched.
type SettingsPatch struct {
	IsOpen *bool `json:"is_open,omitempty"`
}

// CorrectAnswer pairs a question with its expected option.
type CorrectAnswer struct {
	QuestionID    int    `json:"questionId"`
	CorrectAnswer string `json:"correct_answer"`
}

// LeaderboardEntry is one ranked row of the public leaderboard.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	Username  string `json:"username"`
	Score     int    `json:"score"`
	TimeTaken int    `json:"time_taken"`
}

// CapturedID is an identifier recorded by the server for the dashboard.
type CapturedID struct {
	ID        int       `json:"id"`
	CUID      string    `json:"cuid"`
	CreatedAt time.Time `json:"created_at"`
}

// Submission is a recent attempt announced over the push channel.
type Submission struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// ReviewItem is one row of the correction view.
type ReviewItem struct {
	Question  Question `json:"question"`
	Chosen    string   `json:"chosen"`
	Correct   string   `json:"correct"`
	IsCorrect bool     `json:"isCorrect"`
}
