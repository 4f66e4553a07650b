package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cronshift/internal/eventbus"
	rtsup "cronshift/internal/runtime/supervisor"
	"cronshift/internal/storage"
	"cronshift/pkg/logx"
)

// cronRuntimeParser accepts exactly the canonical 5-field form that is
// stored for schedules. No descriptors, no seconds field: anything else
// should have been rejected before it reached storage.
var cronRuntimeParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Config controls the scheduler service.
type Config struct {
	Enabled       bool
	Workers       int           // worker pool size (default 2)
	QueueSize     int           // pending fire buffer (default 256)
	RunTimeout    time.Duration // per-attempt handoff budget (default 30s)
	HistorySize   int           // in-memory fire history cap (default 200)
	RetryMax      int           // handoff retries after the first attempt
	RetryBase     time.Duration // first retry delay (default 500ms)
	RetryMaxDelay time.Duration // backoff cap (default 10s)
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 30 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	return c
}

// Fire describes one due trigger of a schedule.
type Fire struct {
	ScheduleID string
	Name       string
	Cron       string
	WebhookURL string
	// ScheduledFor is the minute the trigger was due, UTC. Cron has
	// minute resolution, so this is FiredAt truncated to the minute.
	ScheduledFor time.Time
	// FiredAt is the wall-clock instant the runner invoked us.
	FiredAt time.Time
}

// FireFunc receives due triggers. The composition root wires this to
// the delivery pipeline. A nil error means the fire was accepted and
// its final outcome will be recorded downstream.
type FireFunc func(ctx context.Context, f Fire) error

// runState is shared between cron invocations of one schedule so an
// in-flight fire can veto the next one (overlap skip).
type runState struct {
	mu      sync.Mutex
	running bool
}

// tryAcquire marks the schedule in flight; false means a previous fire
// still holds it. A nil state never blocks.
func (st *runState) tryAcquire() bool {
	if st == nil {
		return true
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.running {
		return false
	}
	st.running = true
	return true
}

func (st *runState) release() {
	if st == nil {
		return
	}
	st.mu.Lock()
	st.running = false
	st.mu.Unlock()
}

// entry is one registered schedule. entryID is zero while the runner
// is stopped or the schedule is disabled.
type entry struct {
	sched   storage.Schedule
	entryID cron.EntryID
	state   *runState
}

type task struct {
	fire  Fire
	state *runState
}

// HistoryItem is one handled trigger kept in the in-memory ring.
// Status is "fired", "skipped" or "dropped"; delivery outcomes live in
// the run history, not here.
type HistoryItem struct {
	ScheduleID string
	Name       string
	Started    time.Time
	Duration   time.Duration
	Status     string
	Error      string
}

// FireEvent is the bus payload for schedule.* events.
type FireEvent struct {
	ScheduleID   string    `json:"schedule_id"`
	Name         string    `json:"name,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Attempts     int       `json:"attempts,omitempty"`
	Error        string    `json:"error,omitempty"`
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	store storage.Store
	bus   eventbus.Bus
	fire  FireFunc

	runner  *cron.Cron
	entries map[string]*entry

	queue    chan task
	sup      *rtsup.Supervisor
	draining chan struct{} // non-nil while a stop is in flight

	hmu     sync.Mutex
	history []HistoryItem
}

// EntryInfo describes one registered schedule for status surfaces.
type EntryInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Cron    string    `json:"cron"`
	Summary string    `json:"summary"`
	Enabled bool      `json:"enabled"`
	Next    time.Time `json:"next,omitempty"`
	Prev    time.Time `json:"prev,omitempty"`
}

type Snapshot struct {
	Enabled  bool          `json:"enabled"`
	Running  bool          `json:"running"`
	Workers  int           `json:"workers"`
	QueueLen int           `json:"queue_len"`
	Entries  []EntryInfo   `json:"entries,omitempty"`
	History  []HistoryItem `json:"-"`
}
