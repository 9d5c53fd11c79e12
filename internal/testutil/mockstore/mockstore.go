// Package mockstore provides a configurable mock of the project store for handler and service tests.
//
// Each method delegates to the matching function field when it is set and
// otherwise returns a sensible default.
package mockstore

import (
	"context"
	"time"

	"github.com/sipico/preview-token-issuer/internal/storage"
)

// MockStorage mocks *storage.SQLiteStorage.
type MockStorage struct {
	// Project operations
	CreateProjectFunc            func(ctx context.Context, slug, previewToken string) (*storage.Project, error)
	GetProjectFunc               func(ctx context.Context, id int64) (*storage.Project, error)
	ListProjectsFunc             func(ctx context.Context) ([]*storage.Project, error)
	ListProjectsMissingTokenFunc func(ctx context.Context, limit int) ([]*storage.Project, error)
	SetProjectPreviewTokenFunc   func(ctx context.Context, id int64, previewToken string) error
	DeleteProjectFunc            func(ctx context.Context, id int64) error
	ListIssuedTokensFunc         func(ctx context.Context) ([]string, error)

	// Service operations
	CreateServiceFunc func(ctx context.Context, projectID int64, slug string) (*storage.Service, error)
	GetServiceFunc    func(ctx context.Context, id int64) (*storage.Service, error)
	RenameServiceFunc func(ctx context.Context, id int64, slug string) error

	// Preview metadata operations
	CreatePreviewMetadataFunc  func(ctx context.Context, serviceID *int64, slugs []string) (*storage.PreviewMetadata, error)
	GetPreviewMetadataFunc     func(ctx context.Context, id int64) (*storage.PreviewMetadata, error)
	ListPreviewMetadataFunc    func(ctx context.Context) ([]*storage.PreviewMetadata, error)
	SetUpdatedServiceSlugsFunc func(ctx context.Context, id int64, slugs []string) error

	// Lifecycle
	PingFunc          func(ctx context.Context) error
	SchemaVersionFunc func(ctx context.Context) (int, error)
	CloseFunc         func() error
}

// CreateProject defaults to returning project 1 with the given slug and token.
func (m *MockStorage) CreateProject(ctx context.Context, slug, previewToken string) (*storage.Project, error) {
	if m.CreateProjectFunc != nil {
		return m.CreateProjectFunc(ctx, slug, previewToken)
	}
	return &storage.Project{ID: 1, Slug: slug, PreviewDeployToken: previewToken, CreatedAt: time.Now()}, nil
}

// GetProject defaults to storage.ErrNotFound.
func (m *MockStorage) GetProject(ctx context.Context, id int64) (*storage.Project, error) {
	if m.GetProjectFunc != nil {
		return m.GetProjectFunc(ctx, id)
	}
	return nil, storage.ErrNotFound
}

// ListProjects defaults to an empty slice.
func (m *MockStorage) ListProjects(ctx context.Context) ([]*storage.Project, error) {
	if m.ListProjectsFunc != nil {
		return m.ListProjectsFunc(ctx)
	}
	return []*storage.Project{}, nil
}

// ListProjectsMissingToken defaults to an empty slice.
func (m *MockStorage) ListProjectsMissingToken(ctx context.Context, limit int) ([]*storage.Project, error) {
	if m.ListProjectsMissingTokenFunc != nil {
		return m.ListProjectsMissingTokenFunc(ctx, limit)
	}
	return []*storage.Project{}, nil
}

// SetProjectPreviewToken defaults to success.
func (m *MockStorage) SetProjectPreviewToken(ctx context.Context, id int64, previewToken string) error {
	if m.SetProjectPreviewTokenFunc != nil {
		return m.SetProjectPreviewTokenFunc(ctx, id, previewToken)
	}
	return nil
}

// DeleteProject defaults to success.
func (m *MockStorage) DeleteProject(ctx context.Context, id int64) error {
	if m.DeleteProjectFunc != nil {
		return m.DeleteProjectFunc(ctx, id)
	}
	return nil
}

// ListIssuedTokens defaults to an empty slice.
func (m *MockStorage) ListIssuedTokens(ctx context.Context) ([]string, error) {
	if m.ListIssuedTokensFunc != nil {
		return m.ListIssuedTokensFunc(ctx)
	}
	return []string{}, nil
}

// CreateService defaults to returning service 1.
func (m *MockStorage) CreateService(ctx context.Context, projectID int64, slug string) (*storage.Service, error) {
	if m.CreateServiceFunc != nil {
		return m.CreateServiceFunc(ctx, projectID, slug)
	}
	return &storage.Service{ID: 1, ProjectID: projectID, Slug: slug, CreatedAt: time.Now()}, nil
}

// GetService defaults to storage.ErrNotFound.
func (m *MockStorage) GetService(ctx context.Context, id int64) (*storage.Service, error) {
	if m.GetServiceFunc != nil {
		return m.GetServiceFunc(ctx, id)
	}
	return nil, storage.ErrNotFound
}

// RenameService defaults to success.
func (m *MockStorage) RenameService(ctx context.Context, id int64, slug string) error {
	if m.RenameServiceFunc != nil {
		return m.RenameServiceFunc(ctx, id, slug)
	}
	return nil
}

// CreatePreviewMetadata defaults to returning record 1 with no service slug resolved.
func (m *MockStorage) CreatePreviewMetadata(ctx context.Context, serviceID *int64, slugs []string) (*storage.PreviewMetadata, error) {
	if m.CreatePreviewMetadataFunc != nil {
		return m.CreatePreviewMetadataFunc(ctx, serviceID, slugs)
	}
	meta := &storage.PreviewMetadata{ID: 1, UpdatedServiceSlugs: slugs, CreatedAt: time.Now()}
	if serviceID != nil {
		meta.ServiceID = *serviceID
	}
	if meta.UpdatedServiceSlugs == nil {
		meta.UpdatedServiceSlugs = []string{}
	}
	return meta, nil
}

// GetPreviewMetadata defaults to storage.ErrNotFound.
func (m *MockStorage) GetPreviewMetadata(ctx context.Context, id int64) (*storage.PreviewMetadata, error) {
	if m.GetPreviewMetadataFunc != nil {
		return m.GetPreviewMetadataFunc(ctx, id)
	}
	return nil, storage.ErrNotFound
}

// ListPreviewMetadata defaults to an empty slice.
func (m *MockStorage) ListPreviewMetadata(ctx context.Context) ([]*storage.PreviewMetadata, error) {
	if m.ListPreviewMetadataFunc != nil {
		return m.ListPreviewMetadataFunc(ctx)
	}
	return []*storage.PreviewMetadata{}, nil
}

// SetUpdatedServiceSlugs defaults to success.
func (m *MockStorage) SetUpdatedServiceSlugs(ctx context.Context, id int64, slugs []string) error {
	if m.SetUpdatedServiceSlugsFunc != nil {
		return m.SetUpdatedServiceSlugsFunc(ctx, id, slugs)
	}
	return nil
}

// Ping defaults to healthy.
func (m *MockStorage) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// SchemaVersion defaults to storage.LatestSchemaVersion.
func (m *MockStorage) SchemaVersion(ctx context.Context) (int, error) {
	if m.SchemaVersionFunc != nil {
		return m.SchemaVersionFunc(ctx)
	}
	return storage.LatestSchemaVersion(), nil
}

// Close defaults to success.
func (m *MockStorage) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
