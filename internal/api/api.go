// Package api provides the HTTP API for projects, services, preview metadata and backfill runs.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/preview-token-issuer/internal/middleware"
	"github.com/sipico/preview-token-issuer/internal/preview"
	"github.com/sipico/preview-token-issuer/internal/storage"
)

// Storage is everything the handlers read or write directly.
type Storage interface {
	preview.Store

	ListProjects(ctx context.Context) ([]*storage.Project, error)
	DeleteProject(ctx context.Context, id int64) error

	CreateService(ctx context.Context, projectID int64, slug string) (*storage.Service, error)
	GetService(ctx context.Context, id int64) (*storage.Service, error)
	RenameService(ctx context.Context, id int64, slug string) error

	CreatePreviewMetadata(ctx context.Context, serviceID *int64, slugs []string) (*storage.PreviewMetadata, error)
	GetPreviewMetadata(ctx context.Context, id int64) (*storage.PreviewMetadata, error)

	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
}

// Handler serves the API.
type Handler struct {
	storage       Storage
	service       *preview.Service
	logger        *slog.Logger
	logLevel      *slog.LevelVar
	backfillLimit int
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogLevel lets POST /api/loglevel change the given level.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(h *Handler) {
		h.logLevel = lv
	}
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithBackfillLimit sets the default project limit of POST /api/backfill.
func WithBackfillLimit(n int) Option {
	return func(h *Handler) {
		h.backfillLimit = n
	}
}

// NewHandler creates a Handler. service must be built on the same storage.
func NewHandler(store Storage, service *preview.Service, opts ...Option) *Handler {
	h := &Handler{
		storage:  store,
		service:  service,
		logger:   slog.Default(),
		logLevel: new(slog.LevelVar),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// log returns the handler logger tagged with the request ID.
func (h *Handler) log(r *http.Request) *slog.Logger {
	return middleware.Logger(r.Context(), h.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
