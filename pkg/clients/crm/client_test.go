package crm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	crmapi "github.com/Vikasalagarsamy/OOAK-AI/pkg/api/crm"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/clients"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:    baseURL,
		EmployeeID: "EMP-42",
		Timeout:    5 * time.Second,
	})
}

func writeTempRecording(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("failed to write temp recording: %v", err)
	}
	return path
}

func TestUploadRecording_Success(t *testing.T) {
	var gotPath, gotEmployee, gotFilename string
	var gotMeta crmapi.RecordingMetadata
	var gotAudioSize int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotEmployee = r.Header.Get("X-Employee-ID")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
		}
		_ = json.Unmarshal([]byte(r.FormValue("metadata")), &gotMeta)

		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("missing audio part: %v", err)
		} else {
			gotFilename = header.Filename
			data, _ := io.ReadAll(file)
			gotAudioSize = len(data)
			_ = file.Close()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(crmapi.UploadResponse{
			Success:     true,
			RecordingID: "rec-123",
		})
	}))
	defer srv.Close()

	path := writeTempRecording(t, "CallRec_9876543210_20240101.m4a", 4096)

	c := newTestClient(srv.URL)
	resp, err := c.UploadRecording(context.Background(), path, crmapi.RecordingMetadata{
		PhoneNumber: "+919876543210",
		Direction:   "incoming",
		DeviceID:    "device-1",
		EmployeeID:  "EMP-42",
		Matched:     true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || resp.RecordingID != "rec-123" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotPath != "/api/call-recordings/upload" {
		t.Fatalf("expected upload path, got %s", gotPath)
	}
	if gotEmployee != "EMP-42" {
		t.Fatalf("expected employee header EMP-42, got %s", gotEmployee)
	}
	if gotFilename != "CallRec_9876543210_20240101.m4a" {
		t.Fatalf("unexpected filename: %s", gotFilename)
	}
	if gotAudioSize != 4096 {
		t.Fatalf("expected 4096 audio bytes, got %d", gotAudioSize)
	}
	if gotMeta.PhoneNumber != "+919876543210" {
		t.Fatalf("unexpected metadata phone number: %s", gotMeta.PhoneNumber)
	}
}

func TestUploadRecording_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(crmapi.ErrorResponse{Error: "metadata missing"})
	}))
	defer srv.Close()

	path := writeTempRecording(t, "rec.m4a", 2048)

	c := newTestClient(srv.URL)
	if _, err := c.UploadRecording(context.Background(), path, crmapi.RecordingMetadata{}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestUploadRecording_MissingFile(t *testing.T) {
	c := newTestClient("http://localhost:0")
	if _, err := c.UploadRecording(context.Background(), "/does/not/exist.m4a", crmapi.RecordingMetadata{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestUpdateCallRecord(t *testing.T) {
	var gotPath string
	var gotBody crmapi.UpdateCallRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.UpdateCallRecord(context.Background(), crmapi.UpdateCallRequest{
		PhoneNumber:  "+919876543210",
		RecordingURL: srv.URL + "/api/call-recordings/file/rec-123",
		Duration:     42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/call-recordings/update-call" {
		t.Fatalf("expected update-call path, got %s", gotPath)
	}
	if gotBody.Duration != 42 {
		t.Fatalf("expected duration 42, got %d", gotBody.Duration)
	}
}

func TestUpdateCallRecord_NotFoundFallsThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(crmapi.ErrorResponse{Error: "no matching call"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.UpdateCallRecord(context.Background(), crmapi.UpdateCallRequest{PhoneNumber: "+911111111111"})
	if err == nil {
		t.Fatal("expected error so callers can fall back to create")
	}
}

func TestCreateCallRecord(t *testing.T) {
	var gotPath string
	var gotBody crmapi.CallRecordRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.CreateCallRecord(context.Background(), crmapi.CallRecordRequest{
		PhoneNumber: "+919876543210",
		Direction:   "outgoing",
		Status:      "ENDED",
		Outcome:     "answered",
		Duration:    120,
		EmployeeID:  "EMP-42",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/call-monitoring" {
		t.Fatalf("expected call-monitoring path, got %s", gotPath)
	}
	if gotBody.Outcome != "answered" {
		t.Fatalf("unexpected outcome: %s", gotBody.Outcome)
	}
}

func TestCreateCallRecord_RetriesTransientServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var got crmapi.CallRecordRequest
		_ = json.Unmarshal(body, &got)
		if got.PhoneNumber != "+919876543210" {
			t.Errorf("retry lost the request body: %+v", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:    srv.URL,
		EmployeeID: "EMP-42",
		Timeout:    5 * time.Second,
		RetryConfig: &clients.RetryConfig{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
			RetryFunc:  clients.DefaultShouldRetry,
		},
	})
	err := c.CreateCallRecord(context.Background(), crmapi.CallRecordRequest{
		PhoneNumber: "+919876543210",
		Status:      "ENDED",
	})
	if err != nil {
		t.Fatalf("expected the retry to recover, got: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRecordingURL(t *testing.T) {
	c := newTestClient("https://crm.example.com")
	got := c.RecordingURL("rec-123")
	want := "https://crm.example.com/api/call-recordings/file/rec-123"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
