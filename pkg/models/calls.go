package models

import (
	"time"

	"github.com/google/uuid"
)

// Direction indicates who initiated a call.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// SessionState is the lifecycle state of a tracked call.
type SessionState string

const (
	StateRinging   SessionState = "RINGING"
	StateConnected SessionState = "CONNECTED"
	StateEnded     SessionState = "ENDED"
)

// Outcome is the classified result of an ended call.
type Outcome string

const (
	OutcomeAnswered   Outcome = "answered"
	OutcomeMissed     Outcome = "missed"
	OutcomeUnanswered Outcome = "unanswered"
)

// CallSession tracks the lifecycle of one call, keyed by phone number.
// At most one session exists per number at any time; the tracker enforces
// that a new ringing signal updates the existing session instead of
// replacing it.
type CallSession struct {
	ID          string       `json:"id"`
	PhoneNumber string       `json:"phone_number"`
	Direction   Direction    `json:"direction"`
	State       SessionState `json:"state"`
	ContactName string       `json:"contact_name,omitempty"`

	RingingStart *time.Time `json:"ringing_start,omitempty"`
	RingingEnd   *time.Time `json:"ringing_end,omitempty"`
	ConnectedAt  *time.Time `json:"connected_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`

	WasAnswered bool `json:"was_answered"`

	// Durations in whole seconds, derived at ENDED. Never set directly.
	RingingDuration int `json:"ringing_duration"`
	TalkingDuration int `json:"talking_duration"`
	TotalDuration   int `json:"total_duration"`

	// Outcome is set exactly once, when the session transitions to ENDED.
	Outcome Outcome `json:"outcome,omitempty"`

	CorrelationAttempts int  `json:"correlation_attempts"`
	Matched             bool `json:"matched"`
}

// NewCallSession creates a session in RINGING state for the given number.
func NewCallSession(phoneNumber string, direction Direction, ringingStart time.Time) *CallSession {
	return &CallSession{
		ID:           uuid.NewString(),
		PhoneNumber:  phoneNumber,
		Direction:    direction,
		State:        StateRinging,
		RingingStart: &ringingStart,
	}
}

// StartTime returns the earliest known timestamp of the call, preferring the
// ringing start over the connected time.
func (s *CallSession) StartTime() time.Time {
	if s.RingingStart != nil {
		return *s.RingingStart
	}
	if s.ConnectedAt != nil {
		return *s.ConnectedAt
	}
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	return time.Time{}
}

// Connect marks the session answered at the given time and derives the
// ringing duration. Idempotent for repeated connected signals.
func (s *CallSession) Connect(at time.Time) {
	if s.State != StateRinging {
		return
	}
	s.State = StateConnected
	s.ConnectedAt = &at
	s.RingingEnd = &at
	s.WasAnswered = true
	if s.RingingStart != nil {
		s.RingingDuration = wholeSeconds(at.Sub(*s.RingingStart))
	}
}

// End finalizes the session at the given time and derives all durations.
// The outcome is left for the classifier; End never sets it.
func (s *CallSession) End(at time.Time) {
	if s.State == StateEnded {
		return
	}
	s.State = StateEnded
	s.EndedAt = &at

	if s.WasAnswered && s.ConnectedAt != nil {
		s.TalkingDuration = wholeSeconds(at.Sub(*s.ConnectedAt))
	} else {
		s.TalkingDuration = 0
		s.RingingEnd = &at
		if s.RingingStart != nil {
			s.RingingDuration = wholeSeconds(at.Sub(*s.RingingStart))
		}
	}
	s.TotalDuration = wholeSeconds(at.Sub(s.StartTime()))
	if s.TalkingDuration > s.TotalDuration {
		s.TalkingDuration = s.TotalDuration
	}
}

func wholeSeconds(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// Snapshot returns a copy of the session safe to use outside the tracker's
// lock.
func (s *CallSession) Snapshot() CallSession {
	cp := *s
	return cp
}

// RecordingCandidate is a filesystem entry considered for association with a
// call. Candidates are transient; only matched paths are remembered across
// scan cycles (for upload dedup).
type RecordingCandidate struct {
	Path      string
	Name      string
	SizeBytes int64
	ModTime   time.Time
	Extension string
}

// MatchReason names the heuristic that accepted a candidate.
type MatchReason string

const (
	MatchReasonPhoneSuffix  MatchReason = "phone_suffix"
	MatchReasonContactToken MatchReason = "contact_token"
	MatchReasonDateTime     MatchReason = "date_time"
	MatchReasonGenericToken MatchReason = "generic_token"
)

// MatchResult associates one candidate with one ended session. Produced by
// the matcher, consumed immediately by the upload pipeline.
type MatchResult struct {
	Session   CallSession
	Candidate RecordingCandidate
	Reasons   []MatchReason

	// EstimatedDuration is the byte-rate re-estimate of the talk time, zero
	// when no estimate was possible. It only ever adjusts the metadata sent
	// upstream; the classified outcome is never recomputed from it.
	EstimatedDuration int
}

// UploadAttempt tracks one delivery of a matched recording.
type UploadAttempt struct {
	ID            string
	RecordingPath string
	Session       CallSession
	Attempts      int
	LastError     string
	EnqueuedAt    time.Time
}
