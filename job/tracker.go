package job

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"mediaqueue/models"
)

var ErrIllegalTransition = errors.New("illegal status transition")

// State is the in-memory view of one job.
type State struct {
	ID        string        `json:"id"`
	Owner     string        `json:"owner"`
	Status    models.Status `json:"status"`
	Attempts  int           `json:"attempts"`
	Progress  float64       `json:"progress"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Tracker holds the lifecycle state of jobs known to this process and
// rejects every transition the status machine does not allow.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]*State
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*State)}
}

// Add registers id as pending. Re-adding an existing id is a no-op.
func (t *Tracker) Add(id, owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.states[id]; exists {
		return
	}
	t.states[id] = &State{ID: id, Owner: owner, Status: models.StatusPending, UpdatedAt: time.Now()}
}

// Transition moves id to next. Unknown ids are treated as pending, which
// covers jobs recovered from the journal after a restart.
func (t *Tracker) Transition(id string, next models.Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, exists := t.states[id]
	if !exists {
		st = &State{ID: id, Status: models.StatusPending}
		t.states[id] = st
	}
	if !st.Status.CanTransition(next) {
		return fmt.Errorf("%w: job %s from %s to %s", ErrIllegalTransition, id, st.Status, next)
	}
	st.Status = next
	st.UpdatedAt = time.Now()
	return nil
}

// SetAttempt records how many attempts have finished.
func (t *Tracker) SetAttempt(id string, attempt int) {
	t.update(id, func(st *State) { st.Attempts = attempt })
}

func (t *Tracker) SetProgress(id string, percent float64) {
	t.update(id, func(st *State) { st.Progress = percent })
}

func (t *Tracker) SetError(id string, err error) {
	t.update(id, func(st *State) { st.Error = err.Error() })
}

func (t *Tracker) update(id string, fn func(*State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.states[id]; ok {
		fn(st)
		st.UpdatedAt = time.Now()
	}
}

// State returns a copy of the state of id.
func (t *Tracker) State(id string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.states[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Counts returns the number of tracked jobs per status.
func (t *Tracker) Counts() map[models.Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[models.Status]int)
	for _, st := range t.states {
		counts[st.Status]++
	}
	return counts
}

// Forget drops terminal jobs last updated before now-maxAge and returns how
// many were removed.
func (t *Tracker) Forget(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, st := range t.states {
		if st.Status.Terminal() && st.UpdatedAt.Before(cutoff) {
			delete(t.states, id)
			n++
		}
	}
	return n
}
