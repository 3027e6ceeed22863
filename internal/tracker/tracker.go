package tracker

import (
	"sync"
	"time"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"
)

// Tracker owns the session table, keyed by phone number. It is the only
// component that mutates sessions. All methods take the single mutex for a
// short, non-blocking critical section; callers get snapshots and must
// never hold them across I/O expecting freshness.
type Tracker struct {
	mu         sync.Mutex
	sessions   map[string]*models.CallSession
	thresholds Thresholds
	logger     logging.Logger
}

// New creates an empty tracker.
func New(logger logging.Logger, thresholds Thresholds) *Tracker {
	return &Tracker{
		sessions:   make(map[string]*models.CallSession),
		thresholds: thresholds,
		logger:     logger,
	}
}

// Ringing handles a normalized RINGING event. A new session is created in
// RINGING state; an existing RINGING session is updated in place (the
// earliest ringing start wins). Sessions already CONNECTED or ENDED ignore
// re-entry.
func (t *Tracker) Ringing(number string, direction models.Direction, at time.Time) (models.CallSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.sessions[number]; ok {
		if existing.State != models.StateRinging {
			return existing.Snapshot(), false
		}
		if existing.RingingStart == nil {
			existing.RingingStart = &at
		}
		return existing.Snapshot(), true
	}

	session := models.NewCallSession(number, direction, at)
	t.sessions[number] = session

	t.logger.WithFields(logging.Fields{
		"session_id":   session.ID,
		"phone_number": number,
		"direction":    direction,
	}).Info("Call ringing")

	return session.Snapshot(), true
}

// Connected handles a normalized CONNECTED event. A missing prior RINGING
// session is synthesized with ringingStart at the connect time, tolerating
// missed initial signals.
func (t *Tracker) Connected(number string, direction models.Direction, at time.Time) (models.CallSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[number]
	if !ok {
		session = models.NewCallSession(number, direction, at)
		t.sessions[number] = session
	}
	if session.State == models.StateEnded {
		return session.Snapshot(), false
	}

	session.Connect(at)

	t.logger.WithFields(logging.Fields{
		"session_id":       session.ID,
		"phone_number":     number,
		"ringing_duration": session.RingingDuration,
	}).Info("Call connected")

	return session.Snapshot(), true
}

// Ended handles a normalized ENDED event: finalizes durations, classifies
// the outcome exactly once, and leaves the session in the table as pending
// correlation work. Returns false when no session is tracked for the number.
func (t *Tracker) Ended(number string, at time.Time) (models.CallSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[number]
	if !ok {
		return models.CallSession{}, false
	}
	if session.State == models.StateEnded {
		return session.Snapshot(), false
	}

	session.End(at)
	outcome, band := Classify(*session, t.thresholds)
	session.Outcome = outcome

	t.logger.WithFields(logging.Fields{
		"session_id":       session.ID,
		"phone_number":     number,
		"outcome":          outcome,
		"band":             band,
		"ringing_duration": session.RingingDuration,
		"talking_duration": session.TalkingDuration,
		"total_duration":   session.TotalDuration,
	}).Info("Call ended")

	return session.Snapshot(), true
}

// SetContactName records a display name for the session's peer. External
// directory lookups call this with override=true and win over any locally
// inferred placeholder.
func (t *Tracker) SetContactName(number, name string, override bool) {
	if name == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[number]
	if !ok {
		return
	}
	if session.ContactName == "" || override {
		session.ContactName = name
	}
}

// Get returns a snapshot of the session for a number.
func (t *Tracker) Get(number string) (models.CallSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[number]
	if !ok {
		return models.CallSession{}, false
	}
	return session.Snapshot(), true
}

// Sessions returns snapshots of every tracked session.
func (t *Tracker) Sessions() []models.CallSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.CallSession, 0, len(t.sessions))
	for _, session := range t.sessions {
		out = append(out, session.Snapshot())
	}
	return out
}

// Pending returns snapshots of ended, unmatched sessions awaiting
// correlation.
func (t *Tracker) Pending() []models.CallSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.CallSession, 0, len(t.sessions))
	for _, session := range t.sessions {
		if session.State == models.StateEnded && !session.Matched {
			out = append(out, session.Snapshot())
		}
	}
	return out
}

// MarkMatched flags the session as matched so no further correlation runs.
// The session identity is checked so a stale result for a number that has
// since started a new call is discarded rather than raced.
func (t *Tracker) MarkMatched(number, sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[number]
	if !ok || session.ID != sessionID || session.Matched {
		return false
	}
	session.Matched = true
	return true
}

// IncrementAttempts bumps the correlation attempt counter and returns the
// new count. Returns -1 when the session is gone or already matched.
func (t *Tracker) IncrementAttempts(number, sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[number]
	if !ok || session.ID != sessionID || session.Matched {
		return -1
	}
	session.CorrelationAttempts++
	return session.CorrelationAttempts
}

// Remove drops the session for a number, returning its final snapshot.
func (t *Tracker) Remove(number, sessionID string) (models.CallSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[number]
	if !ok || session.ID != sessionID {
		return models.CallSession{}, false
	}
	delete(t.sessions, number)
	return session.Snapshot(), true
}

// ExpireBefore drops ended sessions whose end time is before the cutoff and
// returns their snapshots. Active (non-ended) sessions are never expired.
func (t *Tracker) ExpireBefore(cutoff time.Time) []models.CallSession {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []models.CallSession
	for number, session := range t.sessions {
		if session.State != models.StateEnded || session.EndedAt == nil {
			continue
		}
		if session.EndedAt.Before(cutoff) {
			expired = append(expired, session.Snapshot())
			delete(t.sessions, number)
		}
	}
	return expired
}

// Len reports the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
