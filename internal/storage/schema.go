package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations are applied in order; each runs in its own transaction.
var migrations = []migration{
	{
		version: 1,
		name:    "base tables",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS projects (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				slug TEXT NOT NULL UNIQUE,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,

			`CREATE TABLE IF NOT EXISTS services (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				project_id INTEGER NOT NULL,
				slug TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (project_id, slug),
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
			)`,

			`CREATE INDEX IF NOT EXISTS idx_services_project ON services(project_id)`,

			`CREATE TABLE IF NOT EXISTS preview_env_metadata (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				service_id INTEGER,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (service_id) REFERENCES services(id) ON DELETE SET NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "project preview trigger support",
		stmts: []string{
			// Nullable until the backfill has run; new projects always get one at creation.
			`ALTER TABLE projects ADD COLUMN preview_deploy_token TEXT
				CHECK (preview_deploy_token IS NULL OR length(preview_deploy_token) <= 64)`,

			`CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_preview_deploy_token
				ON projects(preview_deploy_token)`,

			`CREATE TRIGGER IF NOT EXISTS trg_projects_preview_deploy_token_immutable
				BEFORE UPDATE OF preview_deploy_token ON projects
				WHEN OLD.preview_deploy_token IS NOT NULL
					AND (NEW.preview_deploy_token IS NULL OR NEW.preview_deploy_token <> OLD.preview_deploy_token)
				BEGIN
					SELECT RAISE(ABORT, 'preview_deploy_token is immutable');
				END`,

			// Every token ever handed out; rows outlive their project so tokens are never reused.
			`CREATE TABLE IF NOT EXISTS issued_tokens (
				token TEXT PRIMARY KEY,
				project_id INTEGER,
				issued_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`,

			`ALTER TABLE preview_env_metadata ADD COLUMN updated_service_slugs TEXT NOT NULL DEFAULT '[]'`,
		},
	},
}

// LatestSchemaVersion is the version MigrateSchema brings a database to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// MigrateSchema applies every migration newer than the recorded schema version.
// This is idempotent - safe to call multiple times.
func MigrateSchema(ctx context.Context, db *sql.DB) error {
	// Has no effect inside a transaction, so it is set up front.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version, or 0 for a fresh database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): failed to execute DDL: %w", m.version, m.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		m.version, m.name); err != nil {
		return fmt.Errorf("migration %d: failed to record version: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: failed to commit: %w", m.version, err)
	}
	return nil
}
