package api

import (
	"net/http"
	"time"

	"github.com/sipico/preview-token-issuer/internal/storage"
)

// CreatePreviewRequest is the body of POST /api/previews.
type CreatePreviewRequest struct {
	ServiceID           *int64   `json:"service_id"`
	UpdatedServiceSlugs []string `json:"updated_service_slugs"`
}

// PreviewResponse is a preview metadata record as returned by the API.
type PreviewResponse struct {
	ID                  int64    `json:"id"`
	ServiceID           *int64   `json:"service_id"`
	ServiceSlug         string   `json:"service_slug,omitempty"`
	UpdatedServiceSlugs []string `json:"updated_service_slugs"`
	CreatedAt           string   `json:"created_at"`
}

func previewResponse(m *storage.PreviewMetadata) PreviewResponse {
	resp := PreviewResponse{
		ID:                  m.ID,
		ServiceSlug:         m.ServiceSlug,
		UpdatedServiceSlugs: m.UpdatedServiceSlugs,
		CreatedAt:           m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.HasService() {
		sid := m.ServiceID
		resp.ServiceID = &sid
	}
	if resp.UpdatedServiceSlugs == nil {
		resp.UpdatedServiceSlugs = []string{}
	}
	return resp
}

// HandleCreatePreview records a preview environment.
// POST /api/previews
func (h *Handler) HandleCreatePreview(w http.ResponseWriter, r *http.Request) {
	var req CreatePreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.ServiceID != nil && *req.ServiceID <= 0 {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid service ID")
		return
	}
	for _, slug := range req.UpdatedServiceSlugs {
		if _, ok := validSlug(slug); !ok {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "updated_service_slugs must not contain empty slugs")
			return
		}
	}

	m, err := h.storage.CreatePreviewMetadata(r.Context(), req.ServiceID, req.UpdatedServiceSlugs)
	if err != nil {
		if !writeStoreError(w, err, "service") {
			h.log(r).Error("failed to create preview metadata", "error", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, previewResponse(m))
}

// HandleGetPreview returns one preview metadata record.
// GET /api/previews/{id}
func (h *Handler) HandleGetPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid preview ID")
		return
	}

	m, err := h.storage.GetPreviewMetadata(r.Context(), id)
	if err != nil {
		if !writeStoreError(w, err, "preview") {
			h.log(r).Error("failed to get preview metadata", "preview_id", id, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, previewResponse(m))
}
