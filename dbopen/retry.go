package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Attempts is how many times RunTx tries a transaction that keeps hitting
// a locked database.
const Attempts = 3

// IsBusy reports whether err carries SQLITE_BUSY or SQLITE_LOCKED,
// extended codes included.
func IsBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// RunTx runs fn in a transaction. A busy database is retried with a linear
// 100ms backoff; any other error from fn rolls back and is returned as is.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= Attempts; attempt++ {
		if err = once(ctx, db, fn); err == nil || !IsBusy(err) {
			return err
		}
		if attempt == Attempts {
			break
		}
		backoff := time.NewTimer(time.Duration(attempt) * 100 * time.Millisecond)
		select {
		case <-ctx.Done():
			backoff.Stop()
			return fmt.Errorf("dbopen: retry: %w", ctx.Err())
		case <-backoff.C:
		}
	}
	return fmt.Errorf("dbopen: busy after %d attempts: %w", Attempts, err)
}

func once(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}
