package auth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestMiddleware(t *testing.T) http.Handler {
	t.Helper()

	v, err := NewVerifier(mustHash(t, "admin-secret"))
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Middleware(v, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	handler := newTestMiddleware(t)

	tests := []struct {
		name      string
		header    string
		wantCode  int
		wantError string
	}{
		{"valid token", "Bearer admin-secret", http.StatusNoContent, ""},
		{"lowercase scheme", "bearer admin-secret", http.StatusNoContent, ""},
		{"missing header", "", http.StatusUnauthorized, "missing_token"},
		{"wrong scheme", "Basic admin-secret", http.StatusUnauthorized, "missing_token"},
		{"no credential", "Bearer", http.StatusUnauthorized, "missing_token"},
		{"wrong token", "Bearer nope", http.StatusUnauthorized, "invalid_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest("GET", "/api/projects", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantError == "" {
				return
			}

			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", resp["error"], tt.wantError)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"BEARER abc", "abc"},
		{"Bearer  abc ", "abc"},
		{"Token abc", ""},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", tt.header)
		if got := extractBearerToken(req); got != tt.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
