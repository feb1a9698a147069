// Package journal records pipeline runs and their failures in SQLite so the
// next process can see what the previous one ran into.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/regcheck/dbopen"
	"github.com/hazyhaar/regcheck/idgen"
)

// Run outcomes.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Run is one orchestrator invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    string
	StartIndex int
	Checkpoint int
}

// Failure is a run-terminating error.
type Failure struct {
	ID         string
	RunID      string
	Kind       string
	Source     string
	Message    string
	Index      int
	Identifier string
	At         time.Time
}

// Journal is the run history store.
type Journal struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets the generator for run and failure ids.
func WithIDGenerator(g idgen.Generator) Option {
	return func(j *Journal) { j.newID = g }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Open opens (creating if needed) the journal database at path.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return newJournal(db, opts), nil
}

// New wraps an already-opened database, applying the schema.
func New(db *sql.DB, opts ...Option) (*Journal, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return newJournal(db, opts), nil
}

func newJournal(db *sql.DB, opts []Option) *Journal {
	j := &Journal{db: db, newID: idgen.UUIDv7(), now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Close closes the database.
func (j *Journal) Close() error { return j.db.Close() }

// StartRun records a new running run and returns its id.
func (j *Journal) StartRun(ctx context.Context, startIndex int) (string, error) {
	id := idgen.Prefixed("run_", j.newID)()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, outcome, start_index, checkpoint) VALUES (?, ?, ?, ?, ?)`,
		id, j.now().UnixMilli(), OutcomeRunning, startIndex, startIndex)
	if err != nil {
		return "", fmt.Errorf("journal: start run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run with its outcome and final checkpoint.
func (j *Journal) FinishRun(ctx context.Context, runID, outcome string, checkpoint int) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, outcome = ?, checkpoint = ? WHERE id = ?`,
		j.now().UnixMilli(), outcome, checkpoint, runID)
	if err != nil {
		return fmt.Errorf("journal: finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("journal: finish run: unknown run %q", runID)
	}
	return nil
}

// RecordFailure stores f and marks its run failed, atomically.
func (j *Journal) RecordFailure(ctx context.Context, f Failure) error {
	if f.ID == "" {
		f.ID = idgen.Prefixed("fail_", j.newID)()
	}
	if f.At.IsZero() {
		f.At = j.now()
	}
	err := dbopen.RunTx(ctx, j.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO failures (id, run_id, kind, source, message, row_index, identifier, failed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.RunID, f.Kind, f.Source, f.Message, f.Index, f.Identifier, f.At.UnixMilli()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE runs SET outcome = ?, finished_at = ? WHERE id = ?`,
			OutcomeFailed, f.At.UnixMilli(), f.RunID)
		return err
	})
	if err != nil {
		return fmt.Errorf("journal: record failure: %w", err)
	}
	return nil
}

// LastFailure returns the most recent failure across all runs.
func (j *Journal) LastFailure(ctx context.Context) (Failure, bool, error) {
	var (
		f  Failure
		at int64
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT id, run_id, kind, source, message, row_index, identifier, failed_at
		FROM failures ORDER BY failed_at DESC, id DESC LIMIT 1`).
		Scan(&f.ID, &f.RunID, &f.Kind, &f.Source, &f.Message, &f.Index, &f.Identifier, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Failure{}, false, nil
	}
	if err != nil {
		return Failure{}, false, fmt.Errorf("journal: last failure: %w", err)
	}
	f.At = time.UnixMilli(at)
	return f, true, nil
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, outcome, start_index, checkpoint
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Outcome, &r.StartIndex, &r.Checkpoint); err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished > 0 {
			r.FinishedAt = time.UnixMilli(finished)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
