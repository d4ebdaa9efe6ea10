package app

import (
	"encoding/json"
	"log/slog"

	"quiz-client/internal/domain"
	"quiz-client/internal/gateway"
	"quiz-client/internal/logger"
)

// Dispatcher translates push events into Session and Console operations.
// Either target may be nil; events for a missing target are ignored.
type Dispatcher struct {
	session *Session
	console *Console
	log     *slog.Logger
}

func NewDispatcher(session *Session, console *Console, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{session: session, console: console, log: log}
}

// Handle applies one event. It matches gateway.PushClient's handler signature.
func (d *Dispatcher) Handle(e gateway.Event) {
	var err error
	switch e.Type {
	case gateway.EventSettingsUpdated:
		if d.session == nil {
			return
		}
		var settings domain.Settings
		if err = json.Unmarshal(e.Payload, &settings); err == nil {
			d.session.ApplySettings(settings)
		}
	case gateway.EventParticipantCountInit:
		if d.console == nil {
			return
		}
		var count int
		if err = json.Unmarshal(e.Payload, &count); err == nil {
			d.console.SetParticipantCount(count)
		}
	case gateway.EventUserRegistered:
		if d.console != nil {
			d.console.IncrementParticipants()
		}
	case gateway.EventAttemptSubmitted:
		if d.console == nil {
			return
		}
		var sub domain.Submission
		if err = json.Unmarshal(e.Payload, &sub); err == nil {
			d.console.AddSubmission(sub)
		}
	case gateway.EventLeaderboardInit, gateway.EventLeaderboardUpdated:
		if d.console == nil {
			return
		}
		var entries []domain.LeaderboardEntry
		if err = json.Unmarshal(e.Payload, &entries); err == nil {
			d.console.SetLeaderboard(entries)
		}
	default:
		d.log.Debug("ignoring push event", logger.Event(e.Type))
		return
	}
	if err != nil {
		d.log.Warn("malformed push payload", logger.Event(e.Type), logger.Error(err))
	}
}
