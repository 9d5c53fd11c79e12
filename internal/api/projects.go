package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/sipico/preview-token-issuer/internal/logging"
	"github.com/sipico/preview-token-issuer/internal/storage"
)

// maxSlugLength caps project and service slugs.
const maxSlugLength = 100

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	Slug string `json:"slug"`
}

// ProjectResponse is a project as returned by the API.
// PreviewDeployToken is null until the project has been given a token.
type ProjectResponse struct {
	ID                 int64   `json:"id"`
	Slug               string  `json:"slug"`
	PreviewDeployToken *string `json:"preview_deploy_token"`
	CreatedAt          string  `json:"created_at"`
}

func projectResponse(p *storage.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:        p.ID,
		Slug:      p.Slug,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.HasPreviewToken() {
		tok := p.PreviewDeployToken
		resp.PreviewDeployToken = &tok
	}
	return resp
}

// validSlug trims s and reports whether it is a usable slug.
func validSlug(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && len(s) <= maxSlugLength
}

// HandleCreateProject creates a project with a freshly issued preview token.
// POST /api/projects
func (h *Handler) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	slug, ok := validSlug(req.Slug)
	if !ok {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "slug is required")
		return
	}

	p, err := h.service.CreateProject(r.Context(), slug)
	if err != nil {
		if !writeStoreError(w, err, "project") {
			h.log(r).Error("failed to create project", "slug", slug, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, projectResponse(p))
}

// HandleListProjects lists all projects.
// GET /api/projects
func (h *Handler) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.storage.ListProjects(r.Context())
	if err != nil {
		h.log(r).Error("failed to list projects", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	resp := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, projectResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetProject returns one project.
// GET /api/projects/{id}
func (h *Handler) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project ID")
		return
	}

	p, err := h.storage.GetProject(r.Context(), id)
	if err != nil {
		if !writeStoreError(w, err, "project") {
			h.log(r).Error("failed to get project", "project_id", id, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, projectResponse(p))
}

// HandleDeleteProject deletes a project. Its token stays in the issued ledger.
// DELETE /api/projects/{id}
func (h *Handler) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project ID")
		return
	}

	if err := h.storage.DeleteProject(r.Context(), id); err != nil {
		if !writeStoreError(w, err, "project") {
			h.log(r).Error("failed to delete project", "project_id", id, "error", err)
		}
		return
	}

	h.log(r).Info("project deleted", "project_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleIssueProjectToken gives a project without a preview token its token.
// POST /api/projects/{id}/preview-token
func (h *Handler) HandleIssueProjectToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project ID")
		return
	}

	p, err := h.service.IssueProjectToken(r.Context(), id)
	if err != nil {
		if !writeStoreError(w, err, "project") {
			h.log(r).Error("failed to issue preview token", "project_id", id, "error", err)
		}
		return
	}

	h.log(r).Info("preview token issued", "project_id", id, "token", logging.MaskToken(p.PreviewDeployToken))
	writeJSON(w, http.StatusOK, projectResponse(p))
}
