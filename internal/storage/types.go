package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//   - "memory": volatile in-process store, mostly for tests
//
// If Driver is empty or "none", storage is disabled and the app falls
// back to the memory store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Schedule is one persisted webhook schedule.
//
// Cron always holds the canonical 5-field expression in UTC; Timezone
// only records the zone the schedule was last edited in so clients can
// translate it back for display.
type Schedule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Cron       string    `json:"cron"`
	Timezone   string    `json:"timezone,omitempty"`
	WebhookURL string    `json:"webhook_url"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Run statuses. Written by the dispatcher and the scheduler; stored as
// plain strings to keep files and rows greppable.
const (
	RunDelivered = "delivered"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
	RunDropped   = "dropped"
)

// RunEntry records the outcome of one fire of a schedule.
// Keep it compact and schema-stable.
type RunEntry struct {
	ScheduleID   string    `json:"schedule_id"`
	Name         string    `json:"name,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
	At           time.Time `json:"at"`
	Status       string    `json:"status"`
	Attempts     int       `json:"attempts,omitempty"`
	Error        string    `json:"error,omitempty"`
	TookMS       int64     `json:"took_ms,omitempty"`
}
