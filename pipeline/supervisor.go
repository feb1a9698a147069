package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Runner is one orchestrator run.
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// Factory builds the runner for an iteration, typically with a new browser
// session, and returns a release func for it.
type Factory func(ctx context.Context, iteration int) (Runner, func(), error)

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	New Factory
	// Recycle tears down and restarts the browser between iterations.
	Recycle       func(ctx context.Context) error
	MaxIterations int // default 50
	Sleep         func(ctx context.Context, d time.Duration) error
	Now           func() time.Time
	Metrics       *Metrics
	Progress      *Progress
	Logger        *slog.Logger
}

func (c *SupervisorConfig) defaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 50
	}
	if c.Sleep == nil {
		c.Sleep = sleepCtx
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Supervisor restarts runs after verifier failures until the checklist is
// complete or MaxIterations runs have failed.
type Supervisor struct {
	cfg SupervisorConfig
}

// NewSupervisor returns a Supervisor.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	cfg.defaults()
	return &Supervisor{cfg: cfg}
}

// Run drives iterations. Only *RunError failures are retried; anything else
// (configuration, file I/O) is returned at once.
func (s *Supervisor) Run(ctx context.Context) (Summary, error) {
	log := s.cfg.Logger
	var (
		last    Summary
		lastErr error
	)
	for i := 1; i <= s.cfg.MaxIterations; i++ {
		if i > 1 && s.cfg.Recycle != nil {
			if err := s.cfg.Recycle(ctx); err != nil {
				return last, fmt.Errorf("pipeline: recycle browser: %w", err)
			}
		}
		s.cfg.Progress.update(func(sn *Snapshot) { sn.Iteration = i })

		sum, err := s.iterate(ctx, i)
		last = sum
		if err == nil {
			return sum, nil
		}
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}

		var re *RunError
		if !errors.As(err, &re) {
			return sum, err
		}
		lastErr = err
		log.Warn("pipeline: run failed, restarting",
			"iteration", i, "max", s.cfg.MaxIterations, "index", re.Index, "identifier", re.Identifier, "error", re.Err)

		if re.Cooldown > 0 && i < s.cfg.MaxIterations {
			log.Warn("pipeline: repeated blocking, cooling down",
				"source", re.Failure.Source, "cooldown", re.Cooldown)
			s.cfg.Metrics.cooldown()
			until := s.cfg.Now().Add(re.Cooldown)
			s.cfg.Progress.update(func(sn *Snapshot) { sn.CooldownTo = until })
			if err := s.cfg.Sleep(ctx, re.Cooldown); err != nil {
				return sum, err
			}
			s.cfg.Progress.update(func(sn *Snapshot) { sn.CooldownTo = time.Time{} })
		}
	}
	return last, fmt.Errorf("%w after %d runs: %w", ErrIterationsExhausted, s.cfg.MaxIterations, lastErr)
}

func (s *Supervisor) iterate(ctx context.Context, i int) (Summary, error) {
	runner, release, err := s.cfg.New(ctx, i)
	if err != nil {
		return Summary{}, fmt.Errorf("pipeline: build run %d: %w", i, err)
	}
	if release != nil {
		defer release()
	}
	return runner.Run(ctx)
}
