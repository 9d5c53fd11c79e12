package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateService creates a service under a project.
// Returns ErrNotFound if the project doesn't exist and ErrDuplicate if the slug
// is already used within the project.
func (s *SQLiteStorage) CreateService(ctx context.Context, projectID int64, slug string) (*Service, error) {
	if slug == "" {
		return nil, errors.New("slug required")
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO services (project_id, slug) VALUES (?, ?)",
		projectID, slug)
	if err != nil {
		if classified := classifyConstraint(err); classified != err {
			return nil, classified
		}
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}

	return s.GetService(ctx, id)
}

// GetService retrieves a service by ID.
// Returns ErrNotFound if the service doesn't exist.
func (s *SQLiteStorage) GetService(ctx context.Context, id int64) (*Service, error) {
	var svc Service
	err := s.db.QueryRowContext(ctx,
		"SELECT id, project_id, slug, created_at FROM services WHERE id = ?", id).
		Scan(&svc.ID, &svc.ProjectID, &svc.Slug, &svc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &svc, nil
}

// RenameService changes a service slug.
// Returns ErrNotFound if the service doesn't exist and ErrDuplicate if the new slug
// is already used within the project.
func (s *SQLiteStorage) RenameService(ctx context.Context, id int64, slug string) error {
	if slug == "" {
		return errors.New("slug required")
	}

	result, err := s.db.ExecContext(ctx, "UPDATE services SET slug = ? WHERE id = ?", slug, id)
	if err != nil {
		if classified := classifyConstraint(err); classified != err {
			return classified
		}
		return fmt.Errorf("failed to rename service: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
