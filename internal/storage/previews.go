package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const previewSelect = `
	SELECT m.id, m.service_id, s.slug, m.updated_service_slugs, m.created_at
	FROM preview_env_metadata m
	LEFT JOIN services s ON s.id = m.service_id`

func scanPreviewMetadata(row rowScanner) (*PreviewMetadata, error) {
	var m PreviewMetadata
	var serviceID sql.NullInt64
	var serviceSlug sql.NullString
	var slugsJSON string

	if err := row.Scan(&m.ID, &serviceID, &serviceSlug, &slugsJSON, &m.CreatedAt); err != nil {
		return nil, err
	}

	m.ServiceID = serviceID.Int64
	m.ServiceSlug = serviceSlug.String
	if err := unmarshalStringArray(slugsJSON, &m.UpdatedServiceSlugs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal updated service slugs: %w", err)
	}
	return &m, nil
}

// CreatePreviewMetadata records a preview environment. serviceID may be nil.
// A nil slugs stores the empty list.
// Returns ErrNotFound if serviceID names a missing service.
func (s *SQLiteStorage) CreatePreviewMetadata(ctx context.Context, serviceID *int64, slugs []string) (*PreviewMetadata, error) {
	if slugs == nil {
		slugs = []string{}
	}
	slugsJSON, err := marshalStringArray(slugs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal updated service slugs: %w", err)
	}

	var sid sql.NullInt64
	if serviceID != nil {
		sid = sql.NullInt64{Int64: *serviceID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO preview_env_metadata (service_id, updated_service_slugs) VALUES (?, ?)",
		sid, string(slugsJSON))
	if err != nil {
		if classified := classifyConstraint(err); classified != err {
			return nil, classified
		}
		return nil, fmt.Errorf("failed to create preview metadata: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}

	return s.GetPreviewMetadata(ctx, id)
}

// GetPreviewMetadata retrieves a preview metadata record with its service slug.
// Returns ErrNotFound if the record doesn't exist.
func (s *SQLiteStorage) GetPreviewMetadata(ctx context.Context, id int64) (*PreviewMetadata, error) {
	m, err := scanPreviewMetadata(s.db.QueryRowContext(ctx, previewSelect+" WHERE m.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get preview metadata: %w", err)
	}
	return m, nil
}

// ListPreviewMetadata returns all preview metadata records with their service slugs.
// Returns empty slice if none exist.
func (s *SQLiteStorage) ListPreviewMetadata(ctx context.Context) ([]*PreviewMetadata, error) {
	rows, err := s.db.QueryContext(ctx, previewSelect+" ORDER BY m.id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query preview metadata: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	records := make([]*PreviewMetadata, 0)
	for rows.Next() {
		m, err := scanPreviewMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preview metadata row: %w", err)
		}
		records = append(records, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preview metadata: %w", err)
	}

	return records, nil
}

// SetUpdatedServiceSlugs stores slugs on a record whose list is still empty.
// Returns ErrAlreadySet if the list is non-empty and ErrNotFound if the record doesn't exist.
func (s *SQLiteStorage) SetUpdatedServiceSlugs(ctx context.Context, id int64, slugs []string) error {
	if len(slugs) == 0 {
		return errors.New("slugs required")
	}
	slugsJSON, err := marshalStringArray(slugs)
	if err != nil {
		return fmt.Errorf("failed to marshal updated service slugs: %w", err)
	}

	return s.withRetryTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE preview_env_metadata SET updated_service_slugs = ?
			WHERE id = ? AND json_array_length(updated_service_slugs) = 0`,
			string(slugsJSON), id)
		if err != nil {
			return fmt.Errorf("failed to set updated service slugs: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 1 {
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx, "SELECT 1 FROM preview_env_metadata WHERE id = ?", id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check preview metadata: %w", err)
		}
		return ErrAlreadySet
	})
}

// marshalStringArray is a helper to marshal a string array to JSON.
func marshalStringArray(arr []string) ([]byte, error) {
	return json.Marshal(arr)
}

// unmarshalStringArray is a helper to unmarshal a JSON string array.
func unmarshalStringArray(data string, arr *[]string) error {
	if err := json.Unmarshal([]byte(data), arr); err != nil {
		return err
	}
	if *arr == nil {
		*arr = []string{}
	}
	return nil
}
