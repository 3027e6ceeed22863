package recording

import (
	"strings"
	"time"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"
)

// genericTokens are filename fragments vendors commonly stamp on call
// recordings.
var genericTokens = []string{
	"call recording",
	"callrec",
	"call_rec",
	"rec_",
	"recording",
	"record",
	"call",
}

// Matcher decides whether a candidate file belongs to an ended call. The
// heuristics form a union: any one signal is sufficient, and the first
// candidate satisfying it is accepted.
type Matcher struct {
	minSize   int64
	estimator DurationEstimator
	logger    logging.Logger
}

// NewMatcher builds a matcher. minSize rejects trivially empty files;
// estimator may be nil to skip duration refinement.
func NewMatcher(minSize int64, estimator DurationEstimator, logger logging.Logger) *Matcher {
	return &Matcher{
		minSize:   minSize,
		estimator: estimator,
		logger:    logger,
	}
}

// Match evaluates candidates in order and accepts the first one whose name
// carries any recognizable signal for the session. Reports no-match without
// error when nothing fits.
func (m *Matcher) Match(session models.CallSession, candidates []models.RecordingCandidate) (models.MatchResult, bool) {
	for _, candidate := range candidates {
		if candidate.SizeBytes < m.minSize {
			continue
		}
		reasons := m.reasonsFor(session, candidate)
		if len(reasons) == 0 {
			continue
		}

		result := models.MatchResult{
			Session:   session,
			Candidate: candidate,
			Reasons:   reasons,
		}
		if m.estimator != nil {
			if estimate, ok := m.estimator.Estimate(candidate); ok {
				result.EstimatedDuration = estimate
			}
		}

		m.logger.WithFields(logging.Fields{
			"session_id":   session.ID,
			"phone_number": session.PhoneNumber,
			"path":         candidate.Path,
			"reasons":      reasons,
		}).Info("Recording matched")

		return result, true
	}
	return models.MatchResult{}, false
}

// reasonsFor collects every heuristic the candidate satisfies. Each
// predicate is pure and independently testable.
func (m *Matcher) reasonsFor(session models.CallSession, candidate models.RecordingCandidate) []models.MatchReason {
	name := strings.ToLower(candidate.Name)

	var reasons []models.MatchReason
	if MatchesPhoneSuffix(name, session.PhoneNumber) {
		reasons = append(reasons, models.MatchReasonPhoneSuffix)
	}
	if MatchesContactTokens(name, session.ContactName) {
		reasons = append(reasons, models.MatchReasonContactToken)
	}
	if MatchesDateTime(name, session.StartTime()) {
		reasons = append(reasons, models.MatchReasonDateTime)
	}
	if MatchesGenericToken(name) {
		reasons = append(reasons, models.MatchReasonGenericToken)
	}
	return reasons
}

// MatchesPhoneSuffix reports whether the lowercased file name contains the
// last 10 or last 6 digits of the number.
func MatchesPhoneSuffix(name, number string) bool {
	digits := digitsOnly(number)
	if len(digits) == 0 {
		return false
	}
	for _, n := range []int{10, 6} {
		if len(digits) >= n && strings.Contains(name, digits[len(digits)-n:]) {
			return true
		}
	}
	return false
}

// MatchesContactTokens reports whether the lowercased file name contains any
// token of at least three characters derived from the contact name.
func MatchesContactTokens(name, contact string) bool {
	if contact == "" {
		return false
	}
	for _, token := range strings.FieldsFunc(strings.ToLower(contact), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(token) >= 3 && strings.Contains(name, token) {
			return true
		}
	}
	return false
}

// MatchesDateTime reports whether the lowercased file name contains the call
// date as DDMMYY or the call time as HHMM, derived from the ringing start.
func MatchesDateTime(name string, start time.Time) bool {
	if start.IsZero() {
		return false
	}
	return strings.Contains(name, start.Format("020106")) ||
		strings.Contains(name, start.Format("1504"))
}

// MatchesGenericToken reports whether the lowercased file name carries a
// generic recording-indicator token.
func MatchesGenericToken(name string) bool {
	for _, token := range genericTokens {
		if strings.Contains(name, token) {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
