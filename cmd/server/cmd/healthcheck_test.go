package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPerformHealthCheck(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantHealthy bool
		wantStatus  string
		wantError   bool
	}{
		{
			name:        "healthy",
			status:      http.StatusOK,
			body:        `{"status":"healthy","checks":{"database":{"status":"pass","message":"PostgreSQL connection successful"}}}`,
			wantHealthy: true,
			wantStatus:  "healthy",
		},
		{
			name:       "unhealthy",
			status:     http.StatusServiceUnavailable,
			body:       `{"status":"unhealthy","checks":{"migrations":{"status":"fail","message":"Migration state is dirty"}}}`,
			wantStatus: "unhealthy",
		},
		{
			name:       "shutting down",
			status:     http.StatusServiceUnavailable,
			body:       `{"status":"shutting_down"}`,
			wantStatus: "shutting_down",
		},
		{
			name:      "invalid json",
			status:    http.StatusOK,
			body:      `<html>oops</html>`,
			wantError: true,
		},
		{
			name:       "healthy body with wrong code",
			status:     http.StatusInternalServerError,
			body:       `{"status":"healthy"}`,
			wantStatus: "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			result := performHealthCheck(srv.URL + "/readyz")

			if result.IsHealthy != tt.wantHealthy {
				t.Errorf("IsHealthy = %v, want %v (error %q)", result.IsHealthy, tt.wantHealthy, result.Error)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", result.Status, tt.wantStatus)
			}
			if result.HTTPStatus != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", result.HTTPStatus, tt.status)
			}
			if (result.Error != "") != tt.wantError {
				t.Errorf("Error = %q, wantError %v", result.Error, tt.wantError)
			}
		})
	}
}

func TestPerformHealthCheckTimeout(t *testing.T) {
	orig := healthcheckTimeout
	healthcheckTimeout = 1
	defer func() { healthcheckTimeout = orig }()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()
	defer close(release)

	result := performHealthCheck(srv.URL)
	if result.IsHealthy {
		t.Error("expected timeout to be unhealthy")
	}
	if !strings.Contains(result.Error, "request failed") {
		t.Errorf("expected request failure, got %q", result.Error)
	}
}

func TestPerformHealthCheckUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := performHealthCheck(url)
	if result.IsHealthy {
		t.Error("expected closed server to be unhealthy")
	}
	if result.Error == "" {
		t.Error("expected an error for a closed server")
	}
}

func TestDefaultHealthcheckURL(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	if got := defaultHealthcheckURL(); got != "http://localhost:5000/readyz" {
		t.Errorf("defaultHealthcheckURL() = %q", got)
	}

	t.Setenv("SERVER_PORT", "8181")
	if got := defaultHealthcheckURL(); got != "http://localhost:8181/readyz" {
		t.Errorf("defaultHealthcheckURL() with SERVER_PORT = %q", got)
	}
}

func TestWriteHealthResult(t *testing.T) {
	result := HealthCheckResult{
		URL:        "http://localhost:5000/readyz",
		IsHealthy:  false,
		Status:     "unhealthy",
		HTTPStatus: http.StatusServiceUnavailable,
		Checks: map[string]CheckResult{
			"database": {Status: "fail", Message: "Database ping failed"},
		},
		LatencyMs: 12,
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeHealthResult(&buf, result, "text"); err != nil {
			t.Fatalf("writeHealthResult: %v", err)
		}
		out := buf.String()
		for _, want := range []string{"http://localhost:5000/readyz: unhealthy (12ms)", "database", "Database ping failed"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected text output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeHealthResult(&buf, result, "json"); err != nil {
			t.Fatalf("writeHealthResult: %v", err)
		}
		var decoded HealthCheckResult
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
		}
		if decoded.IsHealthy || decoded.HTTPStatus != http.StatusServiceUnavailable {
			t.Errorf("decoded = %+v", decoded)
		}
		if decoded.Checks["database"].Status != "fail" {
			t.Errorf("expected database check to round trip, got %+v", decoded.Checks)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeHealthResult(&buf, result, "yaml"); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}
