package pipeline

import (
	"sync"
	"time"
)

// Snapshot is the externally visible state of the pipeline.
type Snapshot struct {
	RunID      string    `json:"run_id"`
	Iteration  int       `json:"iteration"`
	Checkpoint int       `json:"checkpoint"`
	Rows       int       `json:"rows"`
	Completed  bool      `json:"completed"`
	LastError  string    `json:"last_error,omitempty"`
	CooldownTo time.Time `json:"cooldown_until,omitzero"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Progress is shared between runs and read by the operator endpoint.
type Progress struct {
	mu   sync.Mutex
	snap Snapshot
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Progress) update(fn func(*Snapshot)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.snap)
	p.snap.UpdatedAt = time.Now()
}
