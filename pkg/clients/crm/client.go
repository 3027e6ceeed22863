package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/api/crm"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/clients"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
)

// Client represents a CRM API client
type Client struct {
	baseURL     string
	employeeID  string
	httpClient  *http.Client
	logger      logging.Logger
	retryConfig clients.RetryConfig
	executor    failsafe.Executor[*http.Response]
}

// Config represents the configuration for the CRM client
type Config struct {
	BaseURL              string
	EmployeeID           string
	Timeout              time.Duration
	Logger               logging.Logger
	RetryConfig          *clients.RetryConfig
	CircuitBreakerConfig *clients.CircuitBreakerConfig
}

// NewClient creates a new CRM API client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	retryConfig := clients.DefaultRetryConfig()
	if config.RetryConfig != nil {
		retryConfig = *config.RetryConfig
	}

	// Add circuit breaker if configured
	if config.CircuitBreakerConfig != nil {
		retryConfig.CircuitBreaker = clients.NewCircuitBreaker(*config.CircuitBreakerConfig)
	}

	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: clients.DefaultTransport(),
	}

	executor := clients.NewHTTPExecutor(clients.HTTPExecutorConfig{
		MaxRetries:     retryConfig.MaxRetries,
		BaseDelay:      retryConfig.BaseDelay,
		MaxDelay:       retryConfig.MaxDelay,
		CircuitBreaker: retryConfig.CircuitBreaker,
		ShouldRetry:    retryConfig.RetryFunc,
	})

	return &Client{
		baseURL:     config.BaseURL,
		employeeID:  config.EmployeeID,
		httpClient:  httpClient,
		logger:      config.Logger,
		retryConfig: retryConfig,
		executor:    executor,
	}
}

// RecordingURL builds the public URL for a stored recording
func (c *Client) RecordingURL(recordingID string) string {
	return fmt.Sprintf("%s/api/call-recordings/file/%s", c.baseURL, url.PathEscape(recordingID))
}

// UploadRecording uploads a recording file with its call metadata as a
// multipart request. The metadata travels as a JSON form field alongside
// the audio part.
func (c *Client) UploadRecording(ctx context.Context, path string, meta crm.RecordingMetadata) (*crm.UploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer file.Close()

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("metadata", string(metaJSON)); err != nil {
		return nil, fmt.Errorf("failed to write metadata field: %w", err)
	}
	part, err := writer.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create audio part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	uploadURL := c.baseURL + "/api/call-recordings/upload"
	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Employee-ID", c.employeeID)

	resp, err := clients.DoWithRetry(ctx, c.httpClient, req, c.retryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to upload recording: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var upload crm.UploadResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, &upload); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return &upload, nil
	}

	var errorResp crm.ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil {
		return nil, fmt.Errorf("upload returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil, fmt.Errorf("upload returned error: %s", errorResp.Error)
}

// UpdateCallRecord links an uploaded recording to an existing call record
// on the server. Returns an error when no matching record exists so callers
// can fall back to creating one.
func (c *Client) UpdateCallRecord(ctx context.Context, update crm.UpdateCallRequest) error {
	return c.postJSON(ctx, "/api/call-recordings/update-call", update)
}

// CreateCallRecord creates a new call-monitoring record on the server
func (c *Client) CreateCallRecord(ctx context.Context, record crm.CallRecordRequest) error {
	return c.postJSON(ctx, "/api/call-monitoring", record)
}

// PushCallStatus reports a call lifecycle change to the server. It shares
// the call-monitoring endpoint with CreateCallRecord; the server upserts
// by phone number and start time.
func (c *Client) PushCallStatus(ctx context.Context, record crm.CallRecordRequest) error {
	return c.postJSON(ctx, "/api/call-monitoring", record)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Rebuild the request per attempt: the body reader is consumed on each
	// try and the executor may issue several.
	resp, err := clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Employee-ID", c.employeeID)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return fmt.Errorf("failed to call CRM: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		if c.logger != nil {
			c.logger.WithFields(logging.Fields{
				"status_code": resp.StatusCode,
				"response":    string(body),
				"endpoint":    endpoint,
			}).Error("CRM returned error")
		}
		var errorResp crm.ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error != "" {
			return fmt.Errorf("CRM returned error: %s", errorResp.Error)
		}
		return fmt.Errorf("CRM returned error status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
