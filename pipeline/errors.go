package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/regcheck/journal"
)

// ErrIterationsExhausted is returned by Supervisor.Run when every allowed
// run ended in a failure before the checklist was completed.
var ErrIterationsExhausted = errors.New("pipeline: restart iterations exhausted")

// ErrNoRoute is returned when a classification outcome has no verifier.
var ErrNoRoute = errors.New("pipeline: no verifier for document kind")

// RunError is a verifier failure that ended a run after state was persisted.
// The next run resumes at Index.
type RunError struct {
	Index      int
	Identifier string
	Failure    journal.Failure
	// Cooldown is the pause to observe before the next run, zero when the
	// failure did not escalate.
	Cooldown time.Duration
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("pipeline: row %d (%s): %v", e.Index, e.Identifier, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
