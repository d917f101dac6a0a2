package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeaders_AllHeaders(t *testing.T) {
	handler := SecurityHeaders(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "no-referrer"},
		{"Cross-Origin-Opener-Policy", "same-origin"},
		{"Cross-Origin-Resource-Policy", "same-site"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	}

	for _, tt := range tests {
		if got := rec.Header().Get(tt.header); got != tt.expected {
			t.Errorf("expected %s: %s, got %s", tt.header, tt.expected, got)
		}
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	tests := []struct {
		name         string
		requireHTTPS bool
		tls          bool
		wantHSTS     bool
	}{
		{name: "development", requireHTTPS: false, tls: true, wantHSTS: false},
		{name: "production over TLS", requireHTTPS: true, tls: true, wantHSTS: true},
		{name: "production over plain HTTP", requireHTTPS: true, tls: false, wantHSTS: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := SecurityHeaders(tt.requireHTTPS)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("Strict-Transport-Security")
			if tt.wantHSTS && got != "max-age=31536000; includeSubDomains" {
				t.Errorf("expected HSTS header, got %q", got)
			}
			if !tt.wantHSTS && got != "" {
				t.Errorf("expected no HSTS header, got %q", got)
			}
		})
	}
}
