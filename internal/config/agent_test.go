package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CRM_BASE_URL", "https://crm.example.com")
	t.Setenv("EMPLOYEE_ID", "EMP-42")
	t.Setenv("CALLWATCH_CONFIG_FILE", "")
}

func TestLoadAgentConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CALLWATCH_STORAGE_ROOTS", "")
	t.Setenv("CALLWATCH_AUDIO_EXTENSIONS", "")

	cfg, err := LoadAgentConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.CRMBaseURL != "https://crm.example.com" {
		t.Fatalf("unexpected CRM base URL: %s", cfg.CRMBaseURL)
	}
	if len(cfg.StorageRoots) == 0 {
		t.Fatal("expected default storage roots")
	}
	if len(cfg.AudioExtensions) != 6 {
		t.Fatalf("expected 6 default audio extensions, got %d", len(cfg.AudioExtensions))
	}
	if cfg.MinCandidateSize != 1024 {
		t.Fatalf("expected 1024 byte minimum, got %d", cfg.MinCandidateSize)
	}
	if cfg.InstantThreshold != 3 || cfg.ShortThreshold != 8 || cfg.VoicemailThreshold != 15 {
		t.Fatalf("unexpected thresholds: %d/%d/%d", cfg.InstantThreshold, cfg.ShortThreshold, cfg.VoicemailThreshold)
	}
	wantDelays := []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second, 20 * time.Second, 30 * time.Second}
	if len(cfg.RetryDelays) != len(wantDelays) {
		t.Fatalf("expected %d retry delays, got %d", len(wantDelays), len(cfg.RetryDelays))
	}
	for i, d := range wantDelays {
		if cfg.RetryDelays[i] != d {
			t.Fatalf("retry delay %d: expected %v, got %v", i, d, cfg.RetryDelays[i])
		}
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Fatalf("expected 30s sweep interval, got %v", cfg.SweepInterval)
	}
	if cfg.SessionExpiry != 15*time.Minute {
		t.Fatalf("expected 15m session expiry, got %v", cfg.SessionExpiry)
	}
}

func TestLoadAgentConfig_EnvRootsList(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CALLWATCH_STORAGE_ROOTS", "/tmp/rec-a, /tmp/rec-b ,")

	cfg, err := LoadAgentConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.StorageRoots) != 2 {
		t.Fatalf("expected 2 roots, got %v", cfg.StorageRoots)
	}
	if cfg.StorageRoots[0] != "/tmp/rec-a" || cfg.StorageRoots[1] != "/tmp/rec-b" {
		t.Fatalf("unexpected roots: %v", cfg.StorageRoots)
	}
}

func TestLoadAgentConfig_FileOverlay(t *testing.T) {
	setRequiredEnv(t)

	file := filepath.Join(t.TempDir(), "callwatch.yaml")
	content := []byte("storage_roots:\n  - /data/recordings\nshort_threshold: 10\nsweep_interval: 45s\n")
	if err := os.WriteFile(file, content, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("CALLWATCH_CONFIG_FILE", file)

	cfg, err := LoadAgentConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.StorageRoots) != 1 || cfg.StorageRoots[0] != "/data/recordings" {
		t.Fatalf("expected file roots to win, got %v", cfg.StorageRoots)
	}
	if cfg.ShortThreshold != 10 {
		t.Fatalf("expected short threshold 10, got %d", cfg.ShortThreshold)
	}
	if cfg.SweepInterval != 45*time.Second {
		t.Fatalf("expected 45s sweep interval, got %v", cfg.SweepInterval)
	}
	// Untouched values keep env/defaults
	if cfg.InstantThreshold != 3 {
		t.Fatalf("expected default instant threshold, got %d", cfg.InstantThreshold)
	}
}

func TestLoadAgentConfig_BadFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CALLWATCH_CONFIG_FILE", "/does/not/exist.yaml")

	if _, err := LoadAgentConfig(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDetectHardware(t *testing.T) {
	specs := DetectHardware([]string{t.TempDir()})
	if specs.CPUCores < 1 {
		t.Fatalf("expected at least 1 CPU core, got %d", specs.CPUCores)
	}
}
