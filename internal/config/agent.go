package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/Vikasalagarsamy/OOAK-AI/internal/storage"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/config"

	"gopkg.in/yaml.v3"
)

// Default vendor recording directories scanned when no roots are configured.
// Ordered by how common the vendor layout is in the field.
var defaultStorageRoots = []string{
	"/storage/emulated/0/MIUI/sound_recorder/call_rec",
	"/storage/emulated/0/Music/Recordings/Call Recordings",
	"/storage/emulated/0/Recordings/Call",
	"/storage/emulated/0/Record/Call",
	"/storage/emulated/0/PhoneRecord",
	"/storage/emulated/0/CallRecordings",
	"/storage/emulated/0/Recordings",
	"/storage/emulated/0/Call",
}

// defaultAudioExtensions are the recording formats the scanner accepts.
var defaultAudioExtensions = []string{".mp3", ".wav", ".m4a", ".3gp", ".amr", ".aac"}

// AgentConfig holds all configuration for the callwatch agent.
// Required vars will cause the service to fail at startup if missing.
// Optional vars have sensible defaults.
type AgentConfig struct {
	// Required - remote CRM and identity
	CRMBaseURL string
	EmployeeID string
	DeviceID   string

	// HTTP surface
	Port string
	// APIToken guards the signal endpoints when set. Empty means open,
	// which is fine when the agent only listens on localhost.
	APIToken string

	// Recording discovery
	StorageRoots     []string
	AudioExtensions  []string
	MinCandidateSize int64
	WatchRoots       bool

	// Matching
	MatchWindow time.Duration

	// Outcome classification thresholds (seconds of ringing)
	InstantThreshold   int
	ShortThreshold     int
	VoicemailThreshold int

	// Retry schedule
	RetryDelays   []time.Duration
	SweepInterval time.Duration
	SweepMaxAge   time.Duration
	SessionExpiry time.Duration
	CallLogWindow time.Duration
	UploadTimeout time.Duration
	StatusPushOn  bool
}

// fileConfig mirrors AgentConfig for the YAML overlay. Durations travel as
// strings ("45s", "10m") and pointers distinguish absent keys from zero
// values so the overlay only touches what the file sets.
type fileConfig struct {
	CRMBaseURL *string `yaml:"crm_base_url"`
	EmployeeID *string `yaml:"employee_id"`
	DeviceID   *string `yaml:"device_id"`
	Port       *string `yaml:"port"`

	StorageRoots     []string `yaml:"storage_roots"`
	AudioExtensions  []string `yaml:"audio_extensions"`
	MinCandidateSize *int64   `yaml:"min_candidate_size"`
	WatchRoots       *bool    `yaml:"watch_roots"`

	MatchWindow *string `yaml:"match_window"`

	InstantThreshold   *int `yaml:"instant_threshold"`
	ShortThreshold     *int `yaml:"short_threshold"`
	VoicemailThreshold *int `yaml:"voicemail_threshold"`

	RetryDelays   []string `yaml:"retry_delays"`
	SweepInterval *string  `yaml:"sweep_interval"`
	SweepMaxAge   *string  `yaml:"sweep_max_age"`
	SessionExpiry *string  `yaml:"session_expiry"`
	CallLogWindow *string  `yaml:"call_log_window"`
	UploadTimeout *string  `yaml:"upload_timeout"`
	StatusPushOn  *bool    `yaml:"status_push_enabled"`
}

// LoadAgentConfig loads configuration from environment variables, then
// overlays an optional YAML file named by CALLWATCH_CONFIG_FILE.
// Call this after config.LoadEnv() has been called.
func LoadAgentConfig() (*AgentConfig, error) {
	cfg := &AgentConfig{
		// Required
		CRMBaseURL: config.RequireEnv("CRM_BASE_URL"),
		EmployeeID: config.RequireEnv("EMPLOYEE_ID"),

		DeviceID: config.GetEnv("DEVICE_ID", defaultDeviceID()),
		Port:     config.GetEnv("PORT", "18090"),
		APIToken: config.GetEnv("CALLWATCH_API_TOKEN", ""),

		StorageRoots:     splitList(config.GetEnv("CALLWATCH_STORAGE_ROOTS", "")),
		AudioExtensions:  splitList(config.GetEnv("CALLWATCH_AUDIO_EXTENSIONS", "")),
		MinCandidateSize: int64(config.GetEnvInt("CALLWATCH_MIN_CANDIDATE_BYTES", 1024)),
		WatchRoots:       config.GetEnvBool("CALLWATCH_WATCH_ROOTS", true),

		MatchWindow: config.GetEnvDuration("CALLWATCH_MATCH_WINDOW", 5*time.Minute),

		InstantThreshold:   config.GetEnvInt("CALLWATCH_INSTANT_THRESHOLD_SECONDS", 3),
		ShortThreshold:     config.GetEnvInt("CALLWATCH_SHORT_THRESHOLD_SECONDS", 8),
		VoicemailThreshold: config.GetEnvInt("CALLWATCH_VOICEMAIL_THRESHOLD_SECONDS", 15),

		SweepInterval: config.GetEnvDuration("CALLWATCH_SWEEP_INTERVAL", 30*time.Second),
		SweepMaxAge:   config.GetEnvDuration("CALLWATCH_SWEEP_MAX_AGE", 10*time.Minute),
		SessionExpiry: config.GetEnvDuration("CALLWATCH_SESSION_EXPIRY", 15*time.Minute),
		CallLogWindow: config.GetEnvDuration("CALLWATCH_CALL_LOG_WINDOW", 30*time.Second),
		UploadTimeout: config.GetEnvDuration("CALLWATCH_UPLOAD_TIMEOUT", 60*time.Second),
		StatusPushOn:  config.GetEnvBool("CALLWATCH_STATUS_PUSH", true),
	}

	if file := config.GetEnv("CALLWATCH_CONFIG_FILE", ""); file != "" {
		if err := cfg.applyFile(file); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", file, err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyFile overlays values from a YAML config file. File values win over
// environment values so a deployed config file is authoritative.
func (c *AgentConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	setString(&c.CRMBaseURL, fc.CRMBaseURL)
	setString(&c.EmployeeID, fc.EmployeeID)
	setString(&c.DeviceID, fc.DeviceID)
	setString(&c.Port, fc.Port)

	if len(fc.StorageRoots) > 0 {
		c.StorageRoots = fc.StorageRoots
	}
	if len(fc.AudioExtensions) > 0 {
		c.AudioExtensions = fc.AudioExtensions
	}
	if fc.MinCandidateSize != nil {
		c.MinCandidateSize = *fc.MinCandidateSize
	}
	if fc.WatchRoots != nil {
		c.WatchRoots = *fc.WatchRoots
	}

	setInt(&c.InstantThreshold, fc.InstantThreshold)
	setInt(&c.ShortThreshold, fc.ShortThreshold)
	setInt(&c.VoicemailThreshold, fc.VoicemailThreshold)

	if err := setDuration(&c.MatchWindow, fc.MatchWindow); err != nil {
		return err
	}
	if err := setDuration(&c.SweepInterval, fc.SweepInterval); err != nil {
		return err
	}
	if err := setDuration(&c.SweepMaxAge, fc.SweepMaxAge); err != nil {
		return err
	}
	if err := setDuration(&c.SessionExpiry, fc.SessionExpiry); err != nil {
		return err
	}
	if err := setDuration(&c.CallLogWindow, fc.CallLogWindow); err != nil {
		return err
	}
	if err := setDuration(&c.UploadTimeout, fc.UploadTimeout); err != nil {
		return err
	}
	if fc.StatusPushOn != nil {
		c.StatusPushOn = *fc.StatusPushOn
	}

	if len(fc.RetryDelays) > 0 {
		delays := make([]time.Duration, 0, len(fc.RetryDelays))
		for _, raw := range fc.RetryDelays {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("invalid retry delay %q: %w", raw, err)
			}
			delays = append(delays, d)
		}
		c.RetryDelays = delays
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", *src, err)
	}
	*dst = d
	return nil
}

func (c *AgentConfig) applyDefaults() {
	if len(c.StorageRoots) == 0 {
		c.StorageRoots = append([]string(nil), defaultStorageRoots...)
	}
	if len(c.AudioExtensions) == 0 {
		c.AudioExtensions = append([]string(nil), defaultAudioExtensions...)
	}
	if len(c.RetryDelays) == 0 {
		c.RetryDelays = []time.Duration{
			2 * time.Second,
			5 * time.Second,
			10 * time.Second,
			20 * time.Second,
			30 * time.Second,
		}
	}
	if c.MinCandidateSize <= 0 {
		c.MinCandidateSize = 1024
	}
}

func defaultDeviceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "callwatch-device"
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// HardwareSpecs holds detected hardware information
type HardwareSpecs struct {
	CPUCores int32
	MemoryGB int32
	DiskGB   int32
}

// DetectHardware detects CPU cores, memory, and disk capacity for startup
// reporting. Disk capacity is measured at the first storage root that
// exists, falling back to the filesystem root.
func DetectHardware(storageRoots []string) *HardwareSpecs {
	specs := &HardwareSpecs{}

	specs.CPUCores = int32(runtime.NumCPU())

	totalBytes := getMemoryBytes()
	specs.MemoryGB = int32(totalBytes / (1024 * 1024 * 1024))

	if space, err := storage.FirstUsableRoot(storageRoots); err == nil {
		specs.DiskGB = int32(space.TotalBytes / (1024 * 1024 * 1024))
	}

	return specs
}
