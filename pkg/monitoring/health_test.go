package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthChecker_Basic(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: "healthy"} })
	status := hc.CheckHealth()
	if status.Status != "healthy" {
		t.Fatalf("expected healthy")
	}
}

func TestHealthChecker_DegradedWins(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: "healthy"} })
	hc.AddCheck("meh", func() CheckResult { return CheckResult{Status: "degraded"} })
	if got := hc.CheckHealth().Status; got != "degraded" {
		t.Fatalf("expected degraded, got %q", got)
	}
}

func TestHTTPServiceHealthCheck(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer s.Close()
	res := HTTPServiceHealthCheck("svc", s.URL)()
	if res.Status != "healthy" {
		t.Fatalf("expected healthy")
	}
}

func TestStorageRootsHealthCheck(t *testing.T) {
	if res := StorageRootsHealthCheck(nil)(); res.Status != "unhealthy" {
		t.Fatalf("expected unhealthy for no roots, got %q", res.Status)
	}

	if res := StorageRootsHealthCheck([]string{"/does/not/exist"})(); res.Status != "degraded" {
		t.Fatalf("expected degraded for unreadable roots, got %q", res.Status)
	}

	dir := t.TempDir()
	if res := StorageRootsHealthCheck([]string{"/does/not/exist", dir})(); res.Status != "healthy" {
		t.Fatalf("expected healthy with one readable root, got %q", res.Status)
	}
}
