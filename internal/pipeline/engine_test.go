package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	crmapi "github.com/Vikasalagarsamy/OOAK-AI/pkg/api/crm"
	crmclient "github.com/Vikasalagarsamy/OOAK-AI/pkg/clients/crm"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/models"

	"github.com/Vikasalagarsamy/OOAK-AI/internal/recording"
	"github.com/Vikasalagarsamy/OOAK-AI/internal/tracker"
)

type crmCounts struct {
	uploads int32
	links   int32
	creates int32
}

func newFakeCRM(t *testing.T, counts *crmCounts) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/call-recordings/upload":
			atomic.AddInt32(&counts.uploads, 1)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(crmapi.UploadResponse{Success: true, RecordingID: "rec-9"})
		case "/api/call-recordings/update-call":
			atomic.AddInt32(&counts.links, 1)
			w.WriteHeader(http.StatusOK)
		case "/api/call-monitoring":
			atomic.AddInt32(&counts.creates, 1)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

type testEngine struct {
	engine  *Engine
	tracker *tracker.Tracker
	dir     string
	counts  *crmCounts
}

func newTestEngine(t *testing.T, schedCfg SchedulerConfig) *testEngine {
	t.Helper()
	counts := &crmCounts{}
	srv := newFakeCRM(t, counts)
	t.Cleanup(srv.Close)

	client := crmclient.NewClient(crmclient.Config{
		BaseURL:    srv.URL,
		EmployeeID: "EMP-42",
		Timeout:    5 * time.Second,
		Logger:     quietLogger(),
	})

	dir := t.TempDir()
	logger := quietLogger()

	tr := tracker.New(logger, tracker.DefaultThresholds())
	scanner := recording.NewScanner([]string{dir}, []string{".m4a", ".mp3"}, 5*time.Minute, logger)
	matcher := recording.NewMatcher(1024, recording.NewByteRateEstimator(), logger)
	scheduler := NewScheduler(schedCfg, SchedulerHooks{}, logger)
	uploader := NewUploader(client, UploaderConfig{
		DeviceID:   "device-1",
		EmployeeID: "EMP-42",
		Timeout:    5 * time.Second,
	}, logger)

	engine := NewEngine(tr, scanner, matcher, scheduler, uploader, nil, EngineConfig{
		DeviceID:   "device-1",
		EmployeeID: "EMP-42",
	}, nil, logger)
	engine.dispatch = func(fn func()) { fn() }
	engine.Start()
	t.Cleanup(engine.Stop)

	return &testEngine{engine: engine, tracker: tr, dir: dir, counts: counts}
}

func writeRecording(t *testing.T, dir, name string, size int, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("failed to write recording: %v", err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
	return path
}

func TestEngine_EndToEndScenario(t *testing.T) {
	te := newTestEngine(t, fastSchedulerConfig())

	// Incoming call rings at T, connects at T+4s, ends at T+30s; the
	// recording lands at T+35s, which is "now" from the test's viewpoint.
	start := time.Now().Add(-35 * time.Second)
	writeRecording(t, te.dir, "CallRec_9876543210_20240101.m4a", 480*1024, start.Add(35*time.Second))

	te.engine.Ringing("9876543210", models.DirectionIncoming, start)
	te.engine.Connected("9876543210", models.DirectionIncoming, start.Add(4*time.Second))
	session, ok := te.engine.Ended("9876543210", start.Add(30*time.Second))
	if !ok {
		t.Fatal("expected end to apply")
	}

	if session.Outcome != models.OutcomeAnswered {
		t.Fatalf("expected answered, got %s", session.Outcome)
	}
	if session.RingingDuration != 4 || session.TalkingDuration != 26 || session.TotalDuration != 30 {
		t.Fatalf("unexpected durations: %d/%d/%d",
			session.RingingDuration, session.TalkingDuration, session.TotalDuration)
	}

	waitFor(t, func() bool { return atomic.LoadInt32(&te.counts.uploads) == 1 })
	waitFor(t, func() bool { return atomic.LoadInt32(&te.counts.links) == 1 })

	// A subsequent identical scan issues zero additional uploads.
	te.engine.Rescan(context.Background())
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&te.counts.uploads); got != 1 {
		t.Fatalf("expected exactly 1 upload after rescan, got %d", got)
	}

	// The session is destroyed once matched and uploaded.
	waitFor(t, func() bool { return te.tracker.Len() == 0 })
}

func TestEngine_RetryFindsLateRecording(t *testing.T) {
	te := newTestEngine(t, fastSchedulerConfig())

	start := time.Now().Add(-30 * time.Second)
	te.engine.Ringing("9876543210", models.DirectionIncoming, start)
	te.engine.Ended("9876543210", start.Add(25*time.Second))

	// No recording yet: the immediate attempt misses and the backoff chain
	// starts. The file appears before the chain runs out.
	time.Sleep(10 * time.Millisecond)
	writeRecording(t, te.dir, "rec_9876543210.m4a", 64*1024, time.Now())

	waitFor(t, func() bool { return atomic.LoadInt32(&te.counts.uploads) == 1 })
}

func TestEngine_WatchEventTriggersMatch(t *testing.T) {
	cfg := fastSchedulerConfig()
	cfg.Delays = []time.Duration{time.Hour} // backoff never fires in this test
	te := newTestEngine(t, cfg)

	start := time.Now().Add(-30 * time.Second)
	te.engine.Ringing("9876543210", models.DirectionIncoming, start)
	te.engine.Ended("9876543210", start.Add(25*time.Second))

	path := writeRecording(t, te.dir, "rec_9876543210.m4a", 64*1024, time.Now())
	te.engine.OnRecordingFile(path)

	waitFor(t, func() bool { return atomic.LoadInt32(&te.counts.uploads) == 1 })
}

func TestEngine_WatchEventOutsideWindowNeverMatches(t *testing.T) {
	cfg := fastSchedulerConfig()
	cfg.Delays = []time.Duration{time.Hour}
	te := newTestEngine(t, cfg)

	// The call rang well outside the scanner's 5-minute window; a file
	// landing now must not be associated with it, not even via the live
	// watch shortcut.
	start := time.Now().Add(-10 * time.Minute)
	te.engine.Ringing("9876543210", models.DirectionIncoming, start)
	te.engine.Ended("9876543210", start.Add(25*time.Second))

	path := writeRecording(t, te.dir, "rec_9876543210.m4a", 64*1024, time.Now())
	te.engine.OnRecordingFile(path)

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&te.counts.uploads); got != 0 {
		t.Fatalf("expected no uploads for a file outside the match window, got %d", got)
	}
	if session, ok := te.tracker.Get("9876543210"); !ok || session.Matched {
		t.Fatal("expected the session to stay pending and unmatched")
	}
}

func TestEngine_UnmatchedCallNeverUploads(t *testing.T) {
	te := newTestEngine(t, fastSchedulerConfig())

	start := time.Now().Add(-30 * time.Second)
	te.engine.Ringing("5550001111", models.DirectionIncoming, start)
	te.engine.Ended("5550001111", start.Add(10*time.Second))

	// Enough time for the whole backoff chain at test delays.
	time.Sleep(300 * time.Millisecond)
	if got := atomic.LoadInt32(&te.counts.uploads); got != 0 {
		t.Fatalf("expected no uploads without a matching file, got %d", got)
	}
	session, ok := te.tracker.Get("5550001111")
	if !ok {
		t.Fatal("expected session still pending until expiry")
	}
	if session.CorrelationAttempts != 5 {
		t.Fatalf("expected 5 correlation attempts, got %d", session.CorrelationAttempts)
	}
}

type countingPusher struct {
	mu      sync.Mutex
	records []crmapi.CallRecordRequest
}

func (p *countingPusher) PushCallStatus(_ context.Context, record crmapi.CallRecordRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, record)
	return nil
}

func TestEngine_StatusPushesOnEveryTransition(t *testing.T) {
	logger := quietLogger()
	tr := tracker.New(logger, tracker.DefaultThresholds())
	dir := t.TempDir()
	scanner := recording.NewScanner([]string{dir}, []string{".m4a"}, 5*time.Minute, logger)
	matcher := recording.NewMatcher(1024, nil, logger)
	scheduler := NewScheduler(fastSchedulerConfig(), SchedulerHooks{}, logger)
	uploader := NewUploader(&fakeRemote{}, UploaderConfig{}, logger)
	pusher := &countingPusher{}

	engine := NewEngine(tr, scanner, matcher, scheduler, uploader, pusher, EngineConfig{
		DeviceID:   "device-1",
		EmployeeID: "EMP-42",
		StatusPush: true,
	}, nil, logger)
	engine.dispatch = func(fn func()) { fn() }

	start := time.Now()
	engine.Ringing("9876543210", models.DirectionIncoming, start)
	engine.Connected("9876543210", models.DirectionIncoming, start.Add(2*time.Second))
	engine.Ended("9876543210", start.Add(20*time.Second))

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	if len(pusher.records) != 3 {
		t.Fatalf("expected 3 status pushes, got %d", len(pusher.records))
	}
	wantStates := []string{"RINGING", "CONNECTED", "ENDED"}
	for i, want := range wantStates {
		if pusher.records[i].Status != want {
			t.Fatalf("push %d: expected status %s, got %s", i, want, pusher.records[i].Status)
		}
	}
	if pusher.records[2].Outcome != "answered" {
		t.Fatalf("expected final push to carry the outcome, got %q", pusher.records[2].Outcome)
	}
}
