package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type txFn func(tx *sql.Tx) error

// withRetryTx runs fn in a transaction, retrying with exponential backoff while
// SQLite reports the database as busy or locked. Any other error is returned as is.
func (s *SQLiteStorage) withRetryTx(ctx context.Context, fn txFn) error {
	operation := func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if isBusy(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("failed to begin transaction: %w", err))
		}

		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				return backoff.Permanent(fmt.Errorf("rollback failed (%v) after: %w", rbErr, err))
			}
			if isBusy(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if err := tx.Commit(); err != nil {
			if isBusy(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("failed to commit transaction: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 5 * time.Second
	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

// isBusy reports whether err is a transient SQLITE_BUSY or SQLITE_LOCKED.
func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xFF
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// classifyConstraint maps SQLite constraint violations onto the package's sentinel errors.
// Non-constraint errors and CHECK violations are returned unchanged.
func classifyConstraint(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	if sqliteErr.Code()&0xFF != sqlite3.SQLITE_CONSTRAINT {
		return err
	}

	msg := sqliteErr.Error()
	switch {
	case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_CHECK, strings.Contains(msg, "CHECK constraint failed"):
		// CHECK messages quote the column expression; they are never a uniqueness conflict.
		return err
	case strings.Contains(msg, "is immutable"):
		return ErrAlreadySet
	case strings.Contains(msg, "FOREIGN KEY"):
		return ErrNotFound
	case strings.Contains(msg, "preview_deploy_token"), strings.Contains(msg, "issued_tokens.token"):
		return ErrTokenConflict
	case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		strings.Contains(msg, "UNIQUE"):
		return ErrDuplicate
	}
	return err
}
