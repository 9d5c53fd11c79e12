package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sipico/preview-token-issuer/internal/auth"
	"github.com/sipico/preview-token-issuer/internal/logging"
	"github.com/sipico/preview-token-issuer/internal/metrics"
	"github.com/sipico/preview-token-issuer/internal/middleware"
)

// NewRouter creates the API router. Everything under /api requires a bearer
// token accepted by verifier.
func (h *Handler) NewRouter(verifier *auth.Verifier) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(middleware.HTTPLogging(h.logger, logging.SensitiveFields))
	r.Use(middleware.MaxBodySize(middleware.DefaultMaxBodySize))

	// Public endpoints (no auth)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(verifier, h.logger))

		r.Post("/loglevel", h.HandleSetLogLevel)

		r.Get("/projects", h.HandleListProjects)
		r.Post("/projects", h.HandleCreateProject)
		r.Get("/projects/{id}", h.HandleGetProject)
		r.Delete("/projects/{id}", h.HandleDeleteProject)
		r.Post("/projects/{id}/preview-token", h.HandleIssueProjectToken)
		r.Post("/projects/{id}/services", h.HandleCreateService)

		r.Patch("/services/{id}", h.HandleRenameService)

		r.Post("/previews", h.HandleCreatePreview)
		r.Get("/previews/{id}", h.HandleGetPreview)

		r.Post("/backfill", h.HandleBackfill)
	})

	return r
}
