package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"

	crmapi "github.com/Vikasalagarsamy/OOAK-AI/pkg/api/crm"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"
)

// RemoteService is the uploader's view of the CRM. *crm.Client satisfies it.
type RemoteService interface {
	UploadRecording(ctx context.Context, path string, meta crmapi.RecordingMetadata) (*crmapi.UploadResponse, error)
	UpdateCallRecord(ctx context.Context, update crmapi.UpdateCallRequest) error
	CreateCallRecord(ctx context.Context, record crmapi.CallRecordRequest) error
	RecordingURL(recordingID string) string
}

// UploaderConfig tunes the upload pipeline.
type UploaderConfig struct {
	DeviceID   string
	EmployeeID string
	// Timeout bounds one delivery attempt end to end.
	Timeout time.Duration
	// MaxRetries bounds re-deliveries after a failed upload.
	MaxRetries int
	// QueueSize bounds enqueued-but-undelivered matches.
	QueueSize int
}

// Uploader delivers matched recordings exactly once per (file, call) pair.
// Uploads run on a single-concurrency queue: sequential, never parallel,
// so writes to the same remote session never interleave. The dedup set is
// keyed by absolute path plus call identity and is never cleared for the
// life of the process.
type Uploader struct {
	remote RemoteService
	cfg    UploaderConfig
	logger logging.Logger

	retry retrypolicy.RetryPolicy[*crmapi.UploadResponse]

	mu    sync.Mutex
	dedup map[string]struct{}

	queue  chan models.UploadAttempt
	stopCh chan struct{}
	wg     sync.WaitGroup

	// OnDelivered and OnFailed are invoked from the worker goroutine after
	// a delivery finishes. Both are optional.
	OnDelivered func(attempt models.UploadAttempt, recordingURL string)
	OnFailed    func(attempt models.UploadAttempt, err error)
}

// NewUploader builds a stopped uploader. Call Start to run the worker.
func NewUploader(remote RemoteService, cfg UploaderConfig, logger logging.Logger) *Uploader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 64
	}

	retry := retrypolicy.NewBuilder[*crmapi.UploadResponse]().
		WithBackoff(2*time.Second, 30*time.Second).
		WithMaxRetries(cfg.MaxRetries).
		Build()

	return &Uploader{
		remote: remote,
		cfg:    cfg,
		logger: logger,
		retry:  retry,
		dedup:  make(map[string]struct{}),
		queue:  make(chan models.UploadAttempt, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
}

// Enqueue accepts a match for delivery. Returns false when this (file,
// call) pair was already enqueued once, or when the queue is full.
func (u *Uploader) Enqueue(result models.MatchResult) bool {
	key := result.Candidate.Path + "|" + result.Session.ID

	u.mu.Lock()
	if _, seen := u.dedup[key]; seen {
		u.mu.Unlock()
		return false
	}
	u.dedup[key] = struct{}{}
	u.mu.Unlock()

	attempt := models.UploadAttempt{
		ID:            uuid.NewString(),
		RecordingPath: result.Candidate.Path,
		Session:       result.Session,
		EnqueuedAt:    time.Now(),
	}
	if result.EstimatedDuration > 0 {
		// The byte-rate estimate overrides call-log-reported duration in
		// the remote metadata only; the session itself is untouched.
		attempt.Session.TotalDuration = result.EstimatedDuration
	}

	select {
	case u.queue <- attempt:
		return true
	default:
		// Queue full: surrender the dedup slot so a later rescan can retry.
		u.mu.Lock()
		delete(u.dedup, key)
		u.mu.Unlock()
		u.logger.WithFields(logging.Fields{
			"path": result.Candidate.Path,
		}).Warn("Upload queue full, match dropped")
		return false
	}
}

// Start runs the single delivery worker.
func (u *Uploader) Start() {
	u.wg.Add(1)
	go u.worker()
}

func (u *Uploader) worker() {
	defer u.wg.Done()
	for {
		select {
		case <-u.stopCh:
			return
		case attempt := <-u.queue:
			u.deliver(&attempt)
		}
	}
}

func (u *Uploader) deliver(attempt *models.UploadAttempt) {
	ctx, cancel := context.WithTimeout(context.Background(), u.cfg.Timeout)
	defer cancel()

	meta := crmapi.NewRecordingMetadata(attempt.Session, u.cfg.DeviceID, u.cfg.EmployeeID)

	resp, err := failsafe.With(u.retry).WithContext(ctx).GetWithExecution(
		func(exec failsafe.Execution[*crmapi.UploadResponse]) (*crmapi.UploadResponse, error) {
			attempt.Attempts = exec.Attempts()
			return u.remote.UploadRecording(ctx, attempt.RecordingPath, meta)
		})
	if err != nil {
		attempt.LastError = err.Error()
		u.logger.WithFields(logging.Fields{
			"path":     attempt.RecordingPath,
			"attempts": attempt.Attempts,
		}).WithError(err).Error("Recording upload failed")
		if u.OnFailed != nil {
			u.OnFailed(*attempt, err)
		}
		return
	}

	recordingURL := u.remote.RecordingURL(resp.RecordingID)
	u.reconcile(ctx, attempt, recordingURL)

	u.logger.WithFields(logging.Fields{
		"path":          attempt.RecordingPath,
		"recording_id":  resp.RecordingID,
		"recording_url": recordingURL,
		"phone_number":  attempt.Session.PhoneNumber,
	}).Info("Recording uploaded")

	if u.OnDelivered != nil {
		u.OnDelivered(*attempt, recordingURL)
	}
}

// reconcile links the upload to an existing remote call record; a failed
// link is read as "not found" and falls back to creating a new record.
// Neither failure rolls back the upload; only both failing is reported.
func (u *Uploader) reconcile(ctx context.Context, attempt *models.UploadAttempt, recordingURL string) {
	linkErr := u.remote.UpdateCallRecord(ctx, crmapi.UpdateCallRequest{
		PhoneNumber:  attempt.Session.PhoneNumber,
		RecordingURL: recordingURL,
		Duration:     attempt.Session.TotalDuration,
	})
	if linkErr == nil {
		return
	}

	record := crmapi.NewCallRecordRequest(attempt.Session, u.cfg.DeviceID, u.cfg.EmployeeID)
	record.RecordingURL = recordingURL
	if createErr := u.remote.CreateCallRecord(ctx, record); createErr != nil {
		u.logger.WithFields(logging.Fields{
			"phone_number": attempt.Session.PhoneNumber,
			"link_error":   linkErr.Error(),
		}).WithError(createErr).Error("Both link and create failed for uploaded recording")
	}
}

// Stop terminates the worker. Queued matches that have not started
// delivering are abandoned.
func (u *Uploader) Stop() {
	close(u.stopCh)
	u.wg.Wait()
}
