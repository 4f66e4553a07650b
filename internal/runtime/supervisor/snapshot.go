package supervisor

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Totals are whole-group goroutine counts.
type Totals struct {
	Live    int64  `json:"live"`
	Spawned uint64 `json:"spawned"`
}

// TaskStats is the accumulated run history for one task name. Restart
// iterations fold into their name's row; this feeds status output,
// nothing synchronizes on it.
type TaskStats struct {
	Name     string `json:"name"`
	Live     int64  `json:"live"`
	Runs     uint64 `json:"runs"`
	Restarts uint64 `json:"restarts"`
	Panics   uint64 `json:"panics"`

	StartedAt time.Time     `json:"started_at,omitzero"`
	StoppedAt time.Time     `json:"stopped_at,omitzero"`
	Runtime   time.Duration `json:"runtime"`

	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
	LastPanic   string    `json:"last_panic,omitempty"`
}

// Snapshot is a point-in-time view of a supervisor.
type Snapshot struct {
	Totals     Totals      `json:"totals"`
	FirstError string      `json:"first_error,omitempty"`
	Tasks      []TaskStats `json:"tasks"`
}

// Snapshot reports group totals, the first error, and one row per task
// name: live rows first, then most recently started.
func (s *Supervisor) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		Totals: s.track.totals(),
		Tasks:  s.track.report(),
	}
	if err := s.Err(); err != nil {
		snap.FirstError = err.Error()
	}
	return snap
}

// tracker keeps the run accounting behind one mutex: live/spawned
// counts for real goroutines plus a stats row per logical name.
// Restart iterations touch only their row, never the group totals.
type tracker struct {
	mu      sync.Mutex
	live    int64
	spawned uint64
	rows    map[string]*row
}

type row struct {
	live     int64
	runs     uint64
	restarts uint64
	panics   uint64

	startedAt time.Time
	stoppedAt time.Time
	runtime   time.Duration

	lastErr   string
	lastErrAt time.Time
	lastPanic string
}

func (t *tracker) spawn() {
	t.mu.Lock()
	t.spawned++
	t.live++
	t.mu.Unlock()
}

func (t *tracker) exit() {
	t.mu.Lock()
	t.live--
	t.mu.Unlock()
}

func (t *tracker) row(name string) *row {
	if t.rows == nil {
		t.rows = map[string]*row{}
	}
	r := t.rows[name]
	if r == nil {
		r = &row{}
		t.rows[name] = r
	}
	return r
}

func (t *tracker) begin(name string, isRestart bool) time.Time {
	now := time.Now()
	t.mu.Lock()
	r := t.row(name)
	r.runs++
	r.live++
	if isRestart {
		r.restarts++
	}
	r.startedAt = now
	t.mu.Unlock()
	return now
}

func (t *tracker) end(name string, begun time.Time, err error) {
	now := time.Now()
	t.mu.Lock()
	r := t.row(name)
	if r.live > 0 {
		r.live--
	}
	r.stoppedAt = now
	r.runtime += now.Sub(begun)
	if err != nil {
		r.lastErr = err.Error()
		r.lastErrAt = now
	}
	t.mu.Unlock()
}

func (t *tracker) panicked(name string, v any) {
	t.mu.Lock()
	r := t.row(name)
	r.panics++
	r.lastPanic = fmt.Sprint(v)
	t.mu.Unlock()
}

func (t *tracker) totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Totals{Live: t.live, Spawned: t.spawned}
}

func (t *tracker) report() []TaskStats {
	t.mu.Lock()
	out := make([]TaskStats, 0, len(t.rows))
	for name, r := range t.rows {
		out = append(out, TaskStats{
			Name:        name,
			Live:        r.live,
			Runs:        r.runs,
			Restarts:    r.restarts,
			Panics:      r.panics,
			StartedAt:   r.startedAt,
			StoppedAt:   r.stoppedAt,
			Runtime:     r.runtime,
			LastError:   r.lastErr,
			LastErrorAt: r.lastErrAt,
			LastPanic:   r.lastPanic,
		})
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b TaskStats) int {
		if a.Live != b.Live {
			return cmp.Compare(b.Live, a.Live)
		}
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
