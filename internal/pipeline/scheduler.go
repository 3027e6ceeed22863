package pipeline

import (
	"sync"
	"time"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"
)

// SchedulerConfig tunes the retry scheduler.
type SchedulerConfig struct {
	// Delays is the backoff schedule; its length caps the attempts per call.
	Delays []time.Duration
	// SweepInterval is the cadence of the independent periodic sweep.
	SweepInterval time.Duration
	// SweepMaxAge bounds which unmatched calls the sweep still retries.
	SweepMaxAge time.Duration
	// Expiry drops pending calls from the session table entirely.
	Expiry time.Duration
}

// DefaultSchedulerConfig returns the production schedule.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Delays: []time.Duration{
			2 * time.Second,
			5 * time.Second,
			10 * time.Second,
			20 * time.Second,
			30 * time.Second,
		},
		SweepInterval: 30 * time.Second,
		SweepMaxAge:   10 * time.Minute,
		Expiry:        15 * time.Minute,
	}
}

// SchedulerHooks are the scheduler's view of the rest of the engine.
type SchedulerHooks struct {
	// Attempt runs one scan-and-match for a session. It returns true when
	// the session matched (or is otherwise finished) and needs no further
	// retries.
	Attempt func(session models.CallSession, attempt int) bool
	// Pending lists sessions still awaiting a match.
	Pending func() []models.CallSession
	// Expire drops sessions ended before the cutoff and returns them.
	Expire func(cutoff time.Time) []models.CallSession
	// Exhausted fires once when a session burns through the whole backoff
	// schedule without matching. Optional.
	Exhausted func(session models.CallSession)
}

// Scheduler re-invokes scan-and-match for unmatched calls on a progressive
// backoff schedule, plus an independent periodic sweep. Each call gets its
// own cancelable timer chain; canceling is cheap and happens as soon as a
// match lands, even mid-backoff.
type Scheduler struct {
	cfg    SchedulerConfig
	hooks  SchedulerHooks
	logger logging.Logger

	mu      sync.Mutex
	cancels map[string]chan struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler builds a stopped scheduler. Call Start to run the sweep.
func NewScheduler(cfg SchedulerConfig, hooks SchedulerHooks, logger logging.Logger) *Scheduler {
	if len(cfg.Delays) == 0 {
		cfg.Delays = DefaultSchedulerConfig().Delays
	}
	return &Scheduler{
		cfg:     cfg,
		hooks:   hooks,
		logger:  logger,
		cancels: make(map[string]chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Schedule begins the backoff chain for one unmatched session. A session
// already scheduled is left alone.
func (s *Scheduler) Schedule(session models.CallSession) {
	s.mu.Lock()
	if _, exists := s.cancels[session.ID]; exists {
		s.mu.Unlock()
		return
	}
	cancelCh := make(chan struct{})
	s.cancels[session.ID] = cancelCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runBackoff(session, cancelCh)
}

func (s *Scheduler) runBackoff(session models.CallSession, cancelCh chan struct{}) {
	defer s.wg.Done()
	defer s.forget(session.ID)

	for i, delay := range s.cfg.Delays {
		timer := time.NewTimer(delay)
		select {
		case <-cancelCh:
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		if s.hooks.Attempt(session, i+1) {
			return
		}
	}

	s.logger.WithFields(logging.Fields{
		"session_id":   session.ID,
		"phone_number": session.PhoneNumber,
		"attempts":     len(s.cfg.Delays),
	}).Info("Correlation attempt budget exhausted")
	if s.hooks.Exhausted != nil {
		s.hooks.Exhausted(session)
	}
}

// Cancel stops the backoff chain for a session. Safe to call for unknown
// IDs and after the chain already finished.
func (s *Scheduler) Cancel(sessionID string) {
	s.mu.Lock()
	cancelCh, ok := s.cancels[sessionID]
	if ok {
		delete(s.cancels, sessionID)
	}
	s.mu.Unlock()
	if ok {
		close(cancelCh)
	}
}

func (s *Scheduler) forget(sessionID string) {
	s.mu.Lock()
	delete(s.cancels, sessionID)
	s.mu.Unlock()
}

// Start runs the periodic sweep until Stop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.sweepLoop()
}

func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep retries every still-unmatched call younger than SweepMaxAge and
// expires anything pending longer than Expiry.
func (s *Scheduler) sweep(now time.Time) {
	for _, session := range s.hooks.Pending() {
		if session.EndedAt == nil {
			continue
		}
		age := now.Sub(*session.EndedAt)
		if age > s.cfg.SweepMaxAge {
			continue
		}
		if s.hooks.Attempt(session, 0) {
			s.Cancel(session.ID)
		}
	}

	expired := s.hooks.Expire(now.Add(-s.cfg.Expiry))
	for _, session := range expired {
		s.Cancel(session.ID)
		s.logger.WithFields(logging.Fields{
			"session_id":   session.ID,
			"phone_number": session.PhoneNumber,
			"attempts":     session.CorrelationAttempts,
		}).Info("Pending call expired without a match")
	}
}

// Stop terminates the sweep and all backoff chains, then waits for them.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
