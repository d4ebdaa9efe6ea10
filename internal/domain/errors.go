package domain

import "errors"

// MaxAttemptsMessage is the server's rejection text once the attempt cap is reached.
const MaxAttemptsMessage = "Nombre maximal de tentatives atteint"

var (
	// ErrMaxAttempts is returned when the server refuses an attempt because the cap was reached.
	ErrMaxAttempts = errors.New("maximum attempts reached")
	// ErrNotRegistered is returned when an operation needs a participant identity.
	ErrNotRegistered = errors.New("participant not registered")
	// ErrNoAttempt indicates there is no scored attempt to act on.
	ErrNoAttempt = errors.New("no scored attempt")
	// ErrEmptyQuestionSet indicates the server returned no questions.
	ErrEmptyQuestionSet = errors.New("empty question set")
	// ErrFinalSubmitted is returned once the final score has been locked in.
	ErrFinalSubmitted = errors.New("final score already submitted")
)
