// Package dbopen opens the SQLite file that holds the run journal.
//
// Pragmas travel in the DSN as _pragma parameters, so every connection the
// pool opens gets them:
//
//	db, err := dbopen.Open("state/regcheck.db", dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
//
// Tests use a private in-memory database:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const memory = ":memory:"

type settings struct {
	busy   time.Duration
	sync   string
	mkdir  bool
	schema []string
}

// Option adjusts how Open prepares the database.
type Option func(*settings)

// WithBusyTimeout sets how long a writer waits on a locked database.
// Default: 10s.
func WithBusyTimeout(d time.Duration) Option { return func(s *settings) { s.busy = d } }

// WithSynchronous sets PRAGMA synchronous. Default: NORMAL.
func WithSynchronous(mode string) Option { return func(s *settings) { s.sync = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(s *settings) { s.mkdir = true } }

// WithSchema queues DDL to run once the database is open. Statements must be
// idempotent (CREATE ... IF NOT EXISTS): they run on every Open.
func WithSchema(ddl string) Option { return func(s *settings) { s.schema = append(s.schema, ddl) } }

// DSN returns the modernc.org/sqlite data source name Open would use.
func DSN(path string, opts ...Option) string {
	return build(opts).dsn(path)
}

func build(opts []Option) settings {
	s := settings{busy: 10 * time.Second, sync: "NORMAL"}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func (s settings) dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.busy.Milliseconds()))
	q.Add("_pragma", "synchronous("+s.sync+")")
	if path == memory {
		return "file::memory:?" + q.Encode()
	}
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if needed) the database at path and applies the
// queued schema.
func Open(path string, opts ...Option) (*sql.DB, error) {
	s := build(opts)
	if s.mkdir && path != memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if path == memory {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping %s: %w", path, err)
	}
	for _, ddl := range s.schema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema: %w", err)
		}
	}
	return db, nil
}

// OpenMemory opens an in-memory database closed by t.Cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memory, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
