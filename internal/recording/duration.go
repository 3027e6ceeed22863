package recording

import (
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"
)

// DurationEstimator re-estimates the talk duration of a matched recording.
// Kept behind an interface so the byte-rate approximation can be replaced
// with exact audio decoding without touching the matcher.
type DurationEstimator interface {
	// Estimate returns the estimated duration in whole seconds. ok is false
	// when no sane estimate is possible.
	Estimate(candidate models.RecordingCandidate) (int, bool)
}

// ByteRateEstimator derives duration from file size at an assumed constant
// encoding rate. The default 16 KiB/s corresponds to 128 kbps m4a, the most
// common vendor recorder output.
type ByteRateEstimator struct {
	BytesPerSecond int64
}

// NewByteRateEstimator returns the default 16 KiB/s estimator.
func NewByteRateEstimator() ByteRateEstimator {
	return ByteRateEstimator{BytesPerSecond: 16 * 1024}
}

func (e ByteRateEstimator) Estimate(candidate models.RecordingCandidate) (int, bool) {
	rate := e.BytesPerSecond
	if rate <= 0 {
		rate = 16 * 1024
	}
	seconds := int(candidate.SizeBytes / rate)
	// Sanity bounds: below a second or above an hour the estimate is junk.
	if seconds < 1 || seconds > 3600 {
		return 0, false
	}
	return seconds, true
}
