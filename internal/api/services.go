package api

import (
	"net/http"
	"time"

	"github.com/sipico/preview-token-issuer/internal/storage"
)

// ServiceRequest is the body of POST /api/projects/{id}/services and PATCH /api/services/{id}.
type ServiceRequest struct {
	Slug string `json:"slug"`
}

// ServiceResponse is a service as returned by the API.
type ServiceResponse struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"created_at"`
}

func serviceResponse(s *storage.Service) ServiceResponse {
	return ServiceResponse{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		Slug:      s.Slug,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func decodeServiceRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req ServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return "", false
	}
	slug, ok := validSlug(req.Slug)
	if !ok {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "slug is required")
		return "", false
	}
	return slug, true
}

// HandleCreateService adds a service to a project.
// POST /api/projects/{id}/services
func (h *Handler) HandleCreateService(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r, "id")
	if !ok {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project ID")
		return
	}
	slug, ok := decodeServiceRequest(w, r)
	if !ok {
		return
	}

	svc, err := h.storage.CreateService(r.Context(), projectID, slug)
	if err != nil {
		if !writeStoreError(w, err, "service") {
			h.log(r).Error("failed to create service", "project_id", projectID, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, serviceResponse(svc))
}

// HandleRenameService changes a service slug. Slug lists already stored on
// preview records keep the old slug.
// PATCH /api/services/{id}
func (h *Handler) HandleRenameService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid service ID")
		return
	}
	slug, ok := decodeServiceRequest(w, r)
	if !ok {
		return
	}

	if err := h.storage.RenameService(r.Context(), id, slug); err != nil {
		if !writeStoreError(w, err, "service") {
			h.log(r).Error("failed to rename service", "service_id", id, "error", err)
		}
		return
	}

	svc, err := h.storage.GetService(r.Context(), id)
	if err != nil {
		if !writeStoreError(w, err, "service") {
			h.log(r).Error("failed to get service", "service_id", id, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, serviceResponse(svc))
}
