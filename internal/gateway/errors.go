package gateway

import (
	"fmt"

	"quiz-client/internal/domain"
)

// RejectedError is an application-level refusal: the server answered with
// success=false (or a non-2xx status) and an explanatory message.
type RejectedError struct {
	Op      string
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Message)
}

// Is lets errors.Is(err, domain.ErrMaxAttempts) recognize the attempt-cap refusal.
func (e *RejectedError) Is(target error) bool {
	return target == domain.ErrMaxAttempts && e.Message == domain.MaxAttemptsMessage
}

// StatusError is a non-2xx response without a usable message.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}
