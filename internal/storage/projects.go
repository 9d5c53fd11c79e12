package storage

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sipico/preview-token-issuer/internal/token"
)

const projectColumns = "id, slug, preview_deploy_token, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var tok sql.NullString
	if err := row.Scan(&p.ID, &p.Slug, &tok, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.PreviewDeployToken = tok.String
	return &p, nil
}

// checkPreviewToken accepts a non-empty prefix followed by the issuer's lowercase hex suffix.
func checkPreviewToken(tok string) error {
	if len(tok) > token.MaxLength {
		return fmt.Errorf("%w: exceeds %d bytes", ErrMalformedToken, token.MaxLength)
	}
	n := len(tok) - hex.EncodedLen(token.RandomBytes)
	if n <= 0 || !token.Valid(tok[:n], tok) {
		return ErrMalformedToken
	}
	return nil
}

// CreateProject inserts a project. A non-empty previewToken is recorded in the
// issued-token ledger in the same transaction; an empty one leaves the column NULL
// (legacy rows awaiting backfill).
// Returns ErrDuplicate if the slug is taken, ErrTokenConflict if the token was already issued
// and ErrMalformedToken if it does not have the issued shape.
func (s *SQLiteStorage) CreateProject(ctx context.Context, slug, previewToken string) (*Project, error) {
	if slug == "" {
		return nil, errors.New("slug required")
	}
	if previewToken != "" {
		if err := checkPreviewToken(previewToken); err != nil {
			return nil, err
		}
	}

	var created *Project
	err := s.withRetryTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"INSERT INTO projects (slug, preview_deploy_token) VALUES (?, NULLIF(?, ''))",
			slug, previewToken)
		if err != nil {
			return classifyConstraint(err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get insert ID: %w", err)
		}

		if previewToken != "" {
			if err := recordIssuedToken(ctx, tx, previewToken, id); err != nil {
				return err
			}
		}

		created, err = scanProject(tx.QueryRowContext(ctx,
			"SELECT "+projectColumns+" FROM projects WHERE id = ?", id))
		if err != nil {
			return fmt.Errorf("failed to read created project: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrTokenConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return created, nil
}

// GetProject retrieves a project by ID.
// Returns ErrNotFound if the project doesn't exist.
func (s *SQLiteStorage) GetProject(ctx context.Context, id int64) (*Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects ordered by ID.
// Returns empty slice if no projects exist.
func (s *SQLiteStorage) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.queryProjects(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY id ASC")
}

// ListProjectsMissingToken returns projects whose preview token has not been issued,
// oldest first. A limit <= 0 returns all of them.
func (s *SQLiteStorage) ListProjectsMissingToken(ctx context.Context, limit int) ([]*Project, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	return s.queryProjects(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE preview_deploy_token IS NULL ORDER BY id ASC LIMIT ?",
		limit)
}

func (s *SQLiteStorage) queryProjects(ctx context.Context, query string, args ...any) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	projects := make([]*Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return projects, nil
}

// SetProjectPreviewToken writes the preview token of a project that does not have one yet.
// Only that column is touched. The token is added to the ledger in the same transaction.
// Returns ErrTokenConflict if the token was ever issued before, ErrAlreadySet if the
// project already has a token and ErrNotFound if the project doesn't exist.
func (s *SQLiteStorage) SetProjectPreviewToken(ctx context.Context, id int64, previewToken string) error {
	if previewToken == "" {
		return errors.New("preview token required")
	}
	if err := checkPreviewToken(previewToken); err != nil {
		return err
	}

	return s.withRetryTx(ctx, func(tx *sql.Tx) error {
		if err := recordIssuedToken(ctx, tx, previewToken, id); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			"UPDATE projects SET preview_deploy_token = ? WHERE id = ? AND preview_deploy_token IS NULL",
			previewToken, id)
		if err != nil {
			return classifyConstraint(err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 1 {
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx, "SELECT 1 FROM projects WHERE id = ?", id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check project: %w", err)
		}
		return ErrAlreadySet
	})
}

// DeleteProject deletes a project by ID. Its services cascade; its token stays in
// the ledger so it can never be handed out again.
// Returns ErrNotFound if the project doesn't exist.
func (s *SQLiteStorage) DeleteProject(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
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

// ListIssuedTokens returns every token that must not be issued again: the ledger
// plus anything already stored on a project.
func (s *SQLiteStorage) ListIssuedTokens(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token FROM issued_tokens
		UNION
		SELECT preview_deploy_token FROM projects WHERE preview_deploy_token IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query issued tokens: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	tokens := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan issued token: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issued tokens: %w", err)
	}

	return tokens, nil
}

func recordIssuedToken(ctx context.Context, tx *sql.Tx, previewToken string, projectID int64) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO issued_tokens (token, project_id) VALUES (?, ?)",
		previewToken, projectID)
	if err != nil {
		if classified := classifyConstraint(err); errors.Is(classified, ErrDuplicate) || errors.Is(classified, ErrTokenConflict) {
			return ErrTokenConflict
		}
		return fmt.Errorf("failed to record issued token: %w", err)
	}
	return nil
}
