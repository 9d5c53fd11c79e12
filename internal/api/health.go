package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sipico/preview-token-issuer/internal/storage"
)

const readyTimeout = 5 * time.Second

// ReadyResponse is the body of GET /ready.
type ReadyResponse struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	SchemaVersion int    `json:"schema_version,omitempty"`
}

// HandleHealth reports that the process is up.
// GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady reports whether requests can be served: the database answers
// and its schema carries the preview token and slug list columns.
// GET /ready
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.readiness(r)
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) readiness(r *http.Request) (ReadyResponse, bool) {
	notReady := func(database string) (ReadyResponse, bool) {
		return ReadyResponse{Status: "error", Database: database}, false
	}
	if h.storage == nil {
		return notReady("not configured")
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.storage.Ping(ctx); err != nil {
		h.log(r).Warn("readiness check failed", "error", err)
		return notReady("unavailable")
	}

	version, err := h.storage.SchemaVersion(ctx)
	if err != nil {
		h.log(r).Warn("failed to read schema version", "error", err)
		return notReady("unavailable")
	}
	if version < storage.LatestSchemaVersion() {
		resp, ok := notReady("migration pending")
		resp.SchemaVersion = version
		return resp, ok
	}

	return ReadyResponse{Status: "ok", Database: "connected", SchemaVersion: version}, true
}
