package pipeline

import (
	"context"
	"time"

	crmapi "github.com/Vikasalagarsamy/OOAK-AI/pkg/api/crm"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"

	"github.com/Vikasalagarsamy/OOAK-AI/internal/recording"
	"github.com/Vikasalagarsamy/OOAK-AI/internal/tracker"
)

// StatusPusher reports call lifecycle changes to the remote service.
// *crm.Client satisfies it.
type StatusPusher interface {
	PushCallStatus(ctx context.Context, record crmapi.CallRecordRequest) error
}

// EngineConfig tunes the orchestration layer.
type EngineConfig struct {
	DeviceID     string
	EmployeeID   string
	StatusPush   bool
	StatusPushTO time.Duration
}

// Engine wires the session tracker, scanner, matcher, retry scheduler and
// uploader into one correlation pipeline. It implements telephony.Sink so
// the normalizer can drive it directly.
//
// All entry points return quickly: scanning, matching and uploading run on
// worker goroutines against session snapshots, never on the signal path and
// never under the tracker's lock.
type Engine struct {
	tracker   *tracker.Tracker
	scanner   *recording.Scanner
	matcher   *recording.Matcher
	scheduler *Scheduler
	uploader  *Uploader
	status    StatusPusher
	cfg       EngineConfig
	metrics   *Metrics
	logger    logging.Logger

	// dispatch runs work off the caller's goroutine; tests replace it with
	// a synchronous version.
	dispatch func(func())
}

// NewEngine connects the pipeline. status and metrics may be nil.
func NewEngine(tr *tracker.Tracker, scanner *recording.Scanner, matcher *recording.Matcher, scheduler *Scheduler, uploader *Uploader, status StatusPusher, cfg EngineConfig, metrics *Metrics, logger logging.Logger) *Engine {
	if cfg.StatusPushTO == 0 {
		cfg.StatusPushTO = 10 * time.Second
	}
	e := &Engine{
		tracker:   tr,
		scanner:   scanner,
		matcher:   matcher,
		scheduler: scheduler,
		uploader:  uploader,
		status:    status,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		dispatch:  func(fn func()) { go fn() },
	}
	uploader.OnDelivered = e.onDelivered
	uploader.OnFailed = e.onUploadFailed
	scheduler.hooks = SchedulerHooks{
		Attempt: e.attemptMatch,
		Pending: tr.Pending,
		Expire:  e.expire,
		Exhausted: func(models.CallSession) {
			e.metrics.incRetriesExhausted()
		},
	}
	return e
}

// Start runs the scheduler sweep and the upload worker.
func (e *Engine) Start() {
	e.uploader.Start()
	e.scheduler.Start()
}

// Stop halts background work. In-flight deliveries finish; their results
// for already-finalized calls are discarded by the identity checks.
func (e *Engine) Stop() {
	e.scheduler.Stop()
	e.uploader.Stop()
}

// Ringing implements telephony.Sink.
func (e *Engine) Ringing(number string, direction models.Direction, at time.Time) (models.CallSession, bool) {
	session, applied := e.tracker.Ringing(number, direction, at)
	if applied {
		e.metrics.incTracked(string(direction))
		e.metrics.setActiveSessions(e.tracker.Len())
		e.pushStatus(session)
	}
	return session, applied
}

// Connected implements telephony.Sink.
func (e *Engine) Connected(number string, direction models.Direction, at time.Time) (models.CallSession, bool) {
	session, applied := e.tracker.Connected(number, direction, at)
	if applied {
		e.pushStatus(session)
	}
	return session, applied
}

// Ended implements telephony.Sink. On ENDED the session is handed to the
// scanner for an immediate match attempt; a miss schedules the backoff
// chain.
func (e *Engine) Ended(number string, at time.Time) (models.CallSession, bool) {
	session, applied := e.tracker.Ended(number, at)
	if !applied {
		return session, applied
	}

	e.metrics.incOutcome(string(session.Outcome), string(session.Direction))
	e.metrics.setActiveSessions(e.tracker.Len())
	e.pushStatus(session)

	e.dispatch(func() {
		if !e.attemptMatch(session, 0) {
			e.scheduler.Schedule(session)
		}
	})
	return session, applied
}

// SetContactName implements telephony.Sink.
func (e *Engine) SetContactName(number, name string, override bool) {
	e.tracker.SetContactName(number, name, override)
}

// Rescan runs one scan-and-match pass over every pending session. Wired to
// the manual rescan endpoint. Returns the number of sessions attempted.
func (e *Engine) Rescan(ctx context.Context) int {
	pending := e.tracker.Pending()
	for _, session := range pending {
		session := session
		e.dispatch(func() { e.attemptMatch(session, 0) })
	}
	return len(pending)
}

// Sessions exposes tracker snapshots for the introspection endpoint.
func (e *Engine) Sessions() []models.CallSession {
	return e.tracker.Sessions()
}

// OnRecordingFile reacts to a live watch event: the single fresh file is
// tried against every pending session immediately, without waiting for the
// next backoff tick.
func (e *Engine) OnRecordingFile(path string) {
	e.dispatch(func() {
		candidate, ok := e.scanner.Stat(path)
		if !ok {
			return
		}
		for _, session := range e.tracker.Pending() {
			if !e.scanner.InWindow(candidate.ModTime, session.StartTime()) {
				continue
			}
			if e.tryAccept(session, []models.RecordingCandidate{candidate}) {
				return
			}
		}
	})
}

// attemptMatch runs one scan-and-match for a session snapshot. Returns true
// when the session matched or no longer needs retries.
func (e *Engine) attemptMatch(session models.CallSession, attempt int) bool {
	// Re-check under the tracker: the session may have matched or expired
	// while this attempt was queued.
	current, ok := e.tracker.Get(session.PhoneNumber)
	if !ok || current.ID != session.ID {
		return true
	}
	if current.Matched {
		return true
	}

	e.metrics.incMatchAttempt()
	if attempt > 0 {
		e.tracker.IncrementAttempts(session.PhoneNumber, session.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	candidates := e.scanner.Scan(ctx, current.StartTime())
	return e.tryAccept(current, candidates)
}

// tryAccept runs the matcher and, on success, finalizes the match: mark the
// session, cancel its retries, and hand the pair to the uploader. Stale
// results for sessions that have since been replaced are discarded by
// MarkMatched's identity check.
func (e *Engine) tryAccept(session models.CallSession, candidates []models.RecordingCandidate) bool {
	result, ok := e.matcher.Match(session, candidates)
	if !ok {
		return false
	}
	if !e.tracker.MarkMatched(session.PhoneNumber, session.ID) {
		return true
	}
	result.Session.Matched = true

	if len(result.Reasons) > 0 {
		e.metrics.incMatch(string(result.Reasons[0]))
	}
	e.scheduler.Cancel(session.ID)
	e.uploader.Enqueue(result)
	return true
}

func (e *Engine) expire(cutoff time.Time) []models.CallSession {
	expired := e.tracker.ExpireBefore(cutoff)
	for range expired {
		e.metrics.incSessionsExpired()
	}
	if len(expired) > 0 {
		e.metrics.setActiveSessions(e.tracker.Len())
	}
	return expired
}

// onDelivered destroys the session once its recording is uploaded; the
// call's lifecycle is complete.
func (e *Engine) onDelivered(attempt models.UploadAttempt, recordingURL string) {
	e.metrics.incUpload("delivered")
	e.tracker.Remove(attempt.Session.PhoneNumber, attempt.Session.ID)
	e.metrics.setActiveSessions(e.tracker.Len())
}

// onUploadFailed marks the call upload-failed. The session is still
// discarded to bound memory; the remote side already has the lifecycle
// status from the push updates.
func (e *Engine) onUploadFailed(attempt models.UploadAttempt, err error) {
	e.metrics.incUpload("failed")
	e.tracker.Remove(attempt.Session.PhoneNumber, attempt.Session.ID)
	e.metrics.setActiveSessions(e.tracker.Len())
}

// pushStatus reports a lifecycle transition upstream, best-effort and off
// the signal path.
func (e *Engine) pushStatus(session models.CallSession) {
	if !e.cfg.StatusPush || e.status == nil {
		return
	}
	e.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StatusPushTO)
		defer cancel()
		record := crmapi.NewCallRecordRequest(session, e.cfg.DeviceID, e.cfg.EmployeeID)
		if err := e.status.PushCallStatus(ctx, record); err != nil {
			e.logger.WithError(err).Debug("Call status push failed")
		}
	})
}
