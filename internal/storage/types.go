package storage

import "time"

// Project is an entity that owns a preview deploy token.
type Project struct {
	ID                 int64
	Slug               string
	PreviewDeployToken string // empty until issued
	CreatedAt          time.Time
}

// HasPreviewToken reports whether the project already has its token.
func (p *Project) HasPreviewToken() bool {
	return p.PreviewDeployToken != ""
}

// Service belongs to a project and is addressed by slug within it.
type Service struct {
	ID        int64
	ProjectID int64
	Slug      string
	CreatedAt time.Time
}

// PreviewMetadata records which services a preview environment changed.
type PreviewMetadata struct {
	ID                  int64
	ServiceID           int64  // 0 when the service is gone or was never set
	ServiceSlug         string // current slug of the associated service
	UpdatedServiceSlugs []string
	CreatedAt           time.Time
}

// HasService reports whether the record still points at a service.
func (m *PreviewMetadata) HasService() bool {
	return m.ServiceID != 0
}
