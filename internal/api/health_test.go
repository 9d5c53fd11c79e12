package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sipico/preview-token-issuer/internal/storage"
	"github.com/sipico/preview-token-issuer/internal/testutil/mockstore"
)

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	h := NewHandler(&mockstore.MockStorage{}, nil, WithLogger(quietLogger()))

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status=ok, got %s", resp["status"])
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		storage    Storage
		wantStatus int
		wantDB     string
	}{
		{
			name:       "storage connected",
			storage:    &mockstore.MockStorage{},
			wantStatus: http.StatusOK,
			wantDB:     "connected",
		},
		{
			name: "ping fails",
			storage: &mockstore.MockStorage{
				PingFunc: func(context.Context) error { return errors.New("disk I/O error") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantDB:     "unavailable",
		},
		{
			name: "schema behind",
			storage: &mockstore.MockStorage{
				SchemaVersionFunc: func(context.Context) (int, error) { return 1, nil },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantDB:     "migration pending",
		},
		{
			name: "schema version unreadable",
			storage: &mockstore.MockStorage{
				SchemaVersionFunc: func(context.Context) (int, error) { return 0, errors.New("no such table") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantDB:     "unavailable",
		},
		{
			name:       "storage nil",
			storage:    nil,
			wantStatus: http.StatusServiceUnavailable,
			wantDB:     "not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHandler(tt.storage, nil, WithLogger(quietLogger()))

			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}

			var resp ReadyResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Database != tt.wantDB {
				t.Errorf("expected database=%s, got %s", tt.wantDB, resp.Database)
			}
		})
	}
}

func TestReadyIsPublic(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp ReadyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SchemaVersion != storage.LatestSchemaVersion() {
		t.Errorf("expected schema_version %d, got %d", storage.LatestSchemaVersion(), resp.SchemaVersion)
	}
}
