package tracker

import (
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"
)

// Thresholds are the duration bands (whole seconds) used to classify an
// ended call. Short connected spans are treated as pickup-and-hangup,
// voicemail greetings, or carrier artifacts rather than real conversation.
// The values are tunable policy, not proven business rules.
type Thresholds struct {
	Instant   int // instant hangup band upper bound
	Short     int // short-connect band upper bound
	Voicemail int // voicemail-greeting band upper bound; above this is a real exchange
}

// DefaultThresholds returns the field-calibrated classification bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Instant: 3, Short: 8, Voicemail: 15}
}

// Band names the duration band a classification fell into. Used for
// logging and metrics labels only; it never feeds back into the outcome.
type Band string

const (
	BandNoConnect    Band = "no_connect"
	BandInstant      Band = "instant"
	BandShort        Band = "short"
	BandVoicemail    Band = "voicemail"
	BandConversation Band = "conversation"
)

// Classify determines the outcome of an ended session from its direction,
// whether it connected, and its total duration. Pure and deterministic.
func Classify(session models.CallSession, t Thresholds) (models.Outcome, Band) {
	if !session.WasAnswered {
		return notAnswered(session.Direction), BandNoConnect
	}
	d := session.TotalDuration
	switch {
	case d <= t.Instant:
		return notAnswered(session.Direction), BandInstant
	case d <= t.Short:
		return notAnswered(session.Direction), BandShort
	case d <= t.Voicemail:
		return notAnswered(session.Direction), BandVoicemail
	default:
		return models.OutcomeAnswered, BandConversation
	}
}

func notAnswered(direction models.Direction) models.Outcome {
	if direction == models.DirectionOutgoing {
		return models.OutcomeUnanswered
	}
	return models.OutcomeMissed
}
