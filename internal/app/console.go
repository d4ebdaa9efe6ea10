package app

import (
	"sync"
	"time"

	"quiz-client/internal/domain"
)

// RecentSubmissionsLimit caps the submissions an admin console remembers.
const RecentSubmissionsLimit = 5

// ConsoleView is a point-in-time copy of the admin console.
type ConsoleView struct {
	ParticipantCount  int
	RecentSubmissions []domain.Submission
	Leaderboard       []domain.LeaderboardEntry
	UpdatedAt         time.Time
}

// Top returns at most n leaderboard entries.
func (v ConsoleView) Top(n int) []domain.LeaderboardEntry {
	if n < 0 || n >= len(v.Leaderboard) {
		return v.Leaderboard
	}
	return v.Leaderboard[:n]
}

// Console aggregates the live statistics the push channel reports to an
// administrator and fans every change out to its subscribers.
type Console struct {
	now         func() time.Time
	mu          sync.Mutex
	count       int
	recent      []domain.Submission
	leaderboard []domain.LeaderboardEntry
	updatedAt   time.Time
	subscribers map[chan ConsoleView]struct{}
}

func NewConsole() *Console {
	return NewConsoleWithClock(time.Now)
}

// NewConsoleWithClock allows deterministic timestamps in tests.
func NewConsoleWithClock(now func() time.Time) *Console {
	return &Console{
		now:         now,
		subscribers: make(map[chan ConsoleView]struct{}),
	}
}

// View returns the current console state.
func (c *Console) View() ConsoleView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// SetParticipantCount replaces the participant counter.
func (c *Console) SetParticipantCount(n int) ConsoleView {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = n
	return c.broadcastLocked()
}

// IncrementParticipants counts one newly registered participant.
func (c *Console) IncrementParticipants() ConsoleView {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.broadcastLocked()
}

// AddSubmission records a scored attempt, newest first.
func (c *Console) AddSubmission(sub domain.Submission) ConsoleView {
	c.mu.Lock()
	defer c.mu.Unlock()
	recent := make([]domain.Submission, 0, RecentSubmissionsLimit)
	recent = append(recent, sub)
	recent = append(recent, c.recent...)
	if len(recent) > RecentSubmissionsLimit {
		recent = recent[:RecentSubmissionsLimit]
	}
	c.recent = recent
	return c.broadcastLocked()
}

// SetLeaderboard replaces the leaderboard.
func (c *Console) SetLeaderboard(entries []domain.LeaderboardEntry) ConsoleView {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaderboard = append([]domain.LeaderboardEntry(nil), entries...)
	return c.broadcastLocked()
}

// Subscribe returns a channel receiving every console change, starting with
// the current view. The caller must invoke cancel to release it.
func (c *Console) Subscribe() (<-chan ConsoleView, func()) {
	ch := make(chan ConsoleView, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	initial := c.viewLocked()
	c.mu.Unlock()

	ch <- initial

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Console) broadcastLocked() ConsoleView {
	c.updatedAt = c.now()
	view := c.viewLocked()
	for ch := range c.subscribers {
		select {
		case ch <- view:
		default:
			// Slow subscriber: replace its oldest pending view.
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
	return view
}

func (c *Console) viewLocked() ConsoleView {
	return ConsoleView{
		ParticipantCount:  c.count,
		RecentSubmissions: append([]domain.Submission(nil), c.recent...),
		Leaderboard:       append([]domain.LeaderboardEntry(nil), c.leaderboard...),
		UpdatedAt:         c.updatedAt,
	}
}
