package storage

import (
	"context"
	"database/sql"
	"testing"
)

// getDB returns the underlying database connection for tests.
func (s *SQLiteStorage) getDB() *sql.DB {
	return s.db
}

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateProject(t *testing.T, s *SQLiteStorage, slug, tok string) *Project {
	t.Helper()

	p, err := s.CreateProject(context.Background(), slug, tok)
	if err != nil {
		t.Fatalf("CreateProject(%q) failed: %v", slug, err)
	}
	return p
}
