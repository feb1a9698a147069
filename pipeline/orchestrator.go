// Package pipeline runs the checklist through classification and source
// verification, persisting every finished row so an interrupted run can be
// resumed by the next one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hazyhaar/regcheck/checklist"
	"github.com/hazyhaar/regcheck/checkpoint"
	"github.com/hazyhaar/regcheck/classify"
	"github.com/hazyhaar/regcheck/document"
	"github.com/hazyhaar/regcheck/journal"
	"github.com/hazyhaar/regcheck/registry"
	"github.com/hazyhaar/regcheck/report"
	"github.com/hazyhaar/regcheck/verifier"
)

// Journal is the run history the orchestrator writes to.
type Journal interface {
	StartRun(ctx context.Context, startIndex int) (string, error)
	FinishRun(ctx context.Context, runID, outcome string, checkpoint int) error
	RecordFailure(ctx context.Context, f journal.Failure) error
	LastFailure(ctx context.Context) (journal.Failure, bool, error)
}

// Config wires an Orchestrator.
type Config struct {
	Feed       checklist.Feed
	Results    string // result spreadsheet path
	Checkpoint *checkpoint.Store
	Routes     Routes
	Journal    Journal

	// Throttle spaces Throttled routes. Share one across runs so the gap
	// holds over restarts. Nil means a new 60s Throttle.
	Throttle  *Throttle
	Escalator *Escalator
	Metrics   *Metrics
	Progress  *Progress

	// Cache is filled from the result table at the start of every run.
	// The registry Lookup used by the verifiers must share it.
	Cache *registry.Cache

	Now    func() time.Time
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Throttle == nil {
		c.Throttle = NewThrottle(60 * time.Second)
	}
	if c.Escalator == nil {
		c.Escalator = NewEscalator(0, 0)
	}
	if c.Cache == nil {
		c.Cache = registry.NewCache()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	StartIndex int
	Checkpoint int
	Processed  int
	Completed  bool
}

// Orchestrator processes checklist rows one at a time. It owns the result
// table, the checkpoint and the registry cache for the length of a run.
type Orchestrator struct {
	cfg Config
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	cfg.defaults()
	switch {
	case cfg.Feed == nil:
		return nil, errors.New("pipeline: feed is required")
	case cfg.Results == "":
		return nil, errors.New("pipeline: results path is required")
	case cfg.Checkpoint == nil:
		return nil, errors.New("pipeline: checkpoint store is required")
	case cfg.Journal == nil:
		return nil, errors.New("pipeline: journal is required")
	}
	if err := cfg.Routes.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{cfg: cfg}, nil
}

// run is the state of one Run call.
type run struct {
	id    string
	table *report.Table
	seen  classify.Seen
	next  int
	done  int
}

// Run resumes the checklist from the persisted position and processes rows
// until the feed is exhausted or a verifier fails. A verifier failure is
// journaled, the table and checkpoint are saved, and a *RunError is
// returned; the caller starts a new run with a fresh browser context.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	log := o.cfg.Logger

	r, err := o.load(ctx)
	if err != nil {
		return Summary{}, err
	}
	start := r.next

	r.id, err = o.cfg.Journal.StartRun(ctx, start)
	if err != nil {
		return Summary{}, fmt.Errorf("pipeline: %w", err)
	}
	log = log.With("run_id", r.id)
	log.Info("pipeline: run started", "resume", start, "rows", r.table.Len(), "cache", o.cfg.Cache.Len())
	o.cfg.Progress.update(func(s *Snapshot) {
		s.RunID, s.Checkpoint, s.Rows, s.Completed = r.id, r.next, r.table.Len(), false
	})

	summary := func(completed bool) Summary {
		return Summary{RunID: r.id, StartIndex: start, Checkpoint: r.next, Processed: r.done, Completed: completed}
	}

	for {
		rec, err := o.cfg.Feed.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			o.finish(r, outcomeOf(err))
			return summary(false), fmt.Errorf("pipeline: read checklist: %w", err)
		}
		if rec.Index < r.next {
			if err := o.cfg.Feed.Advance(ctx); err != nil {
				o.finish(r, outcomeOf(err))
				return summary(false), fmt.Errorf("pipeline: advance checklist: %w", err)
			}
			continue
		}

		row, err := o.process(ctx, r, rec)
		if err != nil {
			return summary(false), o.fail(ctx, r, rec, err)
		}
		if err := o.commit(r, row); err != nil {
			o.finish(r, journal.OutcomeFailed)
			return summary(false), err
		}
		if err := o.cfg.Feed.Advance(ctx); err != nil {
			o.finish(r, outcomeOf(err))
			return summary(false), fmt.Errorf("pipeline: advance checklist: %w", err)
		}
	}

	o.finish(r, journal.OutcomeCompleted)
	o.cfg.Progress.update(func(s *Snapshot) { s.Completed = true })
	log.Info("pipeline: checklist completed", "checkpoint", r.next, "processed", r.done)
	return summary(true), nil
}

// load reads the checkpoint and result table and reconciles them. The table
// is authoritative: the resume position is the index after its last row.
func (o *Orchestrator) load(ctx context.Context) (*run, error) {
	cp, err := o.cfg.Checkpoint.Load()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	table, err := report.Open(o.cfg.Results)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	next := 0
	if last, ok := table.Last(); ok {
		next = last.Record.Index + 1
	}
	if cp != next {
		o.cfg.Logger.Warn("pipeline: checkpoint disagrees with result table, using table",
			"checkpoint", cp, "table_next", next)
		if err := o.cfg.Checkpoint.Save(next); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}
	o.cfg.Metrics.checkpoint(next)

	rows := table.Rows()
	seeded := o.cfg.Cache.Seed(rows)
	seen := make(classify.Seen, len(rows))
	for i := range rows {
		if rows[i].Verified {
			seen[classify.Canonical(rows[i].Record.Identifier)] = &rows[i]
		}
	}
	o.cfg.Logger.Debug("pipeline: state loaded", "seen", len(seen), "cache_seeded", seeded)
	return &run{table: table, seen: seen, next: next}, nil
}

// process classifies rec and produces its result row.
func (o *Orchestrator) process(ctx context.Context, r *run, rec document.Record) (document.Row, error) {
	log := o.cfg.Logger.With("run_id", r.id, "index", rec.Index, "identifier", rec.Identifier)

	out := classify.Classify(rec.Identifier, r.seen)
	switch out.Kind {
	case classify.PreviouslySeen:
		log.Info("pipeline: previously verified, copying result")
		o.cfg.Metrics.document("previously_seen")
		return document.Row{Record: rec, Result: out.Previous.Result, Verified: out.Previous.Verified}, nil
	case classify.Unclassifiable:
		log.Info("pipeline: unclassifiable identifier, passing through")
		o.cfg.Metrics.document("unclassifiable")
		return document.Row{Record: rec}, nil
	}

	route, ok := o.cfg.Routes[out.Kind]
	if !ok || route.Verifier == nil {
		return document.Row{}, fmt.Errorf("%w: %s", ErrNoRoute, out.Kind)
	}
	if route.Throttled {
		waited, err := o.cfg.Throttle.Wait(ctx)
		if err != nil {
			return document.Row{}, err
		}
		if waited > 0 {
			log.Debug("pipeline: throttled", "waited", waited)
			o.cfg.Metrics.waited(waited)
		}
	}

	res, err := route.Verifier.Verify(ctx, rec, o.cfg.Cache)
	if err != nil {
		return document.Row{}, err
	}
	log.Info("pipeline: verified", "kind", out.Kind, "source", route.Verifier.Source(),
		"status", res.Status, "verdict", res.Verdict)
	o.cfg.Metrics.document(out.Kind.String())

	row := document.Row{Record: rec, Result: res, Verified: true}
	r.seen[classify.Canonical(rec.Identifier)] = &row
	return row, nil
}

// commit appends row and persists the table, then the checkpoint.
func (o *Orchestrator) commit(r *run, row document.Row) error {
	r.table.Append(row)
	if err := r.table.Save(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	r.next = row.Record.Index + 1
	r.done++
	if err := o.cfg.Checkpoint.Save(r.next); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	o.cfg.Metrics.checkpoint(r.next)
	o.cfg.Progress.update(func(s *Snapshot) { s.Checkpoint, s.Rows = r.next, r.table.Len() })
	return nil
}

// fail persists state after a verifier error, journals the failure and
// decides on escalation.
func (o *Orchestrator) fail(ctx context.Context, r *run, rec document.Record, cause error) error {
	// Persistence must not be skipped because the run context was cancelled.
	bg := context.WithoutCancel(ctx)

	if err := r.table.Save(); err != nil {
		o.cfg.Logger.Error("pipeline: save results after failure", "error", err)
	}
	if err := o.cfg.Checkpoint.Save(r.next); err != nil {
		o.cfg.Logger.Error("pipeline: save checkpoint after failure", "error", err)
	}

	f := journal.Failure{
		RunID:      r.id,
		Kind:       string(verifier.KindOf(cause)),
		Source:     verifier.SourceOf(cause),
		Message:    cause.Error(),
		Index:      rec.Index,
		Identifier: rec.Identifier,
		At:         o.cfg.Now(),
	}
	if f.Kind == "" {
		f.Kind = "error"
	}

	var prev *journal.Failure
	if p, ok, err := o.cfg.Journal.LastFailure(bg); err != nil {
		o.cfg.Logger.Error("pipeline: read last failure", "error", err)
	} else if ok {
		prev = &p
	}
	if err := o.cfg.Journal.RecordFailure(bg, f); err != nil {
		o.cfg.Logger.Error("pipeline: journal failure", "error", err)
	}
	o.finish(r, outcomeOf(cause))

	cooldown := o.cfg.Escalator.Cooldown(prev, f)
	o.cfg.Metrics.failure(f.Kind, f.Source)
	o.cfg.Logger.Error("pipeline: verification failed",
		"run_id", r.id, "index", rec.Index, "identifier", rec.Identifier,
		"kind", f.Kind, "source", f.Source, "error", cause, "cooldown", cooldown)
	o.cfg.Progress.update(func(s *Snapshot) { s.LastError = cause.Error() })

	return &RunError{Index: rec.Index, Identifier: rec.Identifier, Failure: f, Cooldown: cooldown, Err: cause}
}

func (o *Orchestrator) finish(r *run, outcome string) {
	if err := o.cfg.Journal.FinishRun(context.Background(), r.id, outcome, r.next); err != nil {
		o.cfg.Logger.Error("pipeline: journal finish", "run_id", r.id, "error", err)
	}
}

func outcomeOf(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return journal.OutcomeCancelled
	}
	return journal.OutcomeFailed
}
