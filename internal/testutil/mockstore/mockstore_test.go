package mockstore

import (
	"context"
	"errors"
	"testing"

	"github.com/sipico/preview-token-issuer/internal/api"
	"github.com/sipico/preview-token-issuer/internal/preview"
	"github.com/sipico/preview-token-issuer/internal/storage"
)

// TestMockStorage_ImplementsInterfaces keeps the mock in step with its consumers.
func TestMockStorage_ImplementsInterfaces(t *testing.T) {
	t.Parallel()
	var _ preview.Store = (*MockStorage)(nil)
	var _ api.Storage = (*MockStorage)(nil)
	var _ api.Storage = (*storage.SQLiteStorage)(nil)
}

// TestMockStorage_DefaultBehavior verifies default return values when no function fields are set.
func TestMockStorage_DefaultBehavior(t *testing.T) {
	t.Parallel()
	mock := &MockStorage{}
	ctx := context.Background()

	p, err := mock.CreateProject(ctx, "web", "pt_x")
	if err != nil || p.Slug != "web" || p.PreviewDeployToken != "pt_x" {
		t.Errorf("CreateProject default = %+v, %v", p, err)
	}
	if _, err := mock.GetProject(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetProject default should return ErrNotFound, got %v", err)
	}
	if list, err := mock.ListProjects(ctx); err != nil || list == nil || len(list) != 0 {
		t.Errorf("ListProjects default = %v, %v; want empty slice", list, err)
	}
	if list, err := mock.ListIssuedTokens(ctx); err != nil || list == nil {
		t.Errorf("ListIssuedTokens default = %v, %v; want empty slice", list, err)
	}
	if _, err := mock.GetService(ctx, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetService default should return ErrNotFound, got %v", err)
	}

	svcID := int64(7)
	meta, err := mock.CreatePreviewMetadata(ctx, &svcID, nil)
	if err != nil || meta.ServiceID != 7 || meta.UpdatedServiceSlugs == nil {
		t.Errorf("CreatePreviewMetadata default = %+v, %v", meta, err)
	}
	if err := mock.SetProjectPreviewToken(ctx, 1, "pt_x"); err != nil {
		t.Errorf("SetProjectPreviewToken default = %v", err)
	}
	if err := mock.Ping(ctx); err != nil {
		t.Errorf("Ping default = %v", err)
	}
	if v, err := mock.SchemaVersion(ctx); err != nil || v != storage.LatestSchemaVersion() {
		t.Errorf("SchemaVersion default = %d, %v", v, err)
	}
	if err := mock.Close(); err != nil {
		t.Errorf("Close default = %v", err)
	}
}

// TestMockStorage_CustomFunctions verifies function fields take precedence.
func TestMockStorage_CustomFunctions(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	var gotLimit int
	mock := &MockStorage{
		ListProjectsMissingTokenFunc: func(_ context.Context, limit int) ([]*storage.Project, error) {
			gotLimit = limit
			return nil, wantErr
		},
		PingFunc: func(context.Context) error { return wantErr },
	}

	if _, err := mock.ListProjectsMissingToken(context.Background(), 5); !errors.Is(err, wantErr) {
		t.Errorf("expected custom error, got %v", err)
	}
	if gotLimit != 5 {
		t.Errorf("expected limit 5 to be forwarded, got %d", gotLimit)
	}
	if err := mock.Ping(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("expected custom ping error, got %v", err)
	}
}
