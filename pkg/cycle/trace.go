package cycle

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Step is one recorded stage of a cycle run.
type Step struct {
	At      time.Time      `json:"at"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Trace records what a single cycle run did, step by step. It is kept as the
// last-run report for the admin API. Steps are appended while the run is in
// flight; readers take a Snapshot.
type Trace struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	StartedAt time.Time `json:"startedAt"`
	Steps     []Step    `json:"steps"`

	mu sync.Mutex
}

func newTrace(reason string) *Trace {
	return &Trace{
		ID:        uuid.NewString(),
		Reason:    reason,
		StartedAt: time.Now().UTC(),
		Steps:     []Step{},
	}
}

func (t *Trace) add(name string, payload map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Steps = append(t.Steps, Step{At: time.Now().UTC(), Name: name, Payload: payload})
}

// Snapshot returns a copy that is safe to serialize while the run keeps
// appending steps.
func (t *Trace) Snapshot() *Trace {
	t.mu.Lock()
	defer t.mu.Unlock()
	steps := make([]Step, len(t.Steps))
	copy(steps, t.Steps)
	return &Trace{
		ID:        t.ID,
		Reason:    t.Reason,
		StartedAt: t.StartedAt,
		Steps:     steps,
	}
}

// traceKeeper holds the most recent trace for inspection.
type traceKeeper struct {
	mu   sync.RWMutex
	last *Trace
}

func (k *traceKeeper) set(t *Trace) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.last = t
}

func (k *traceKeeper) get() *Trace {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.last
}
