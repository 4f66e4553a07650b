package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cronshift/pkg/logx"
)

// Store is what the API, scheduler and dispatcher need from
// persistence. Implementations must be safe for concurrent use.
type Store interface {
	// Schedules. ListSchedules orders by name, then ID.
	ListSchedules(ctx context.Context) ([]Schedule, error)
	GetSchedule(ctx context.Context, id string) (Schedule, bool, error)
	PutSchedule(ctx context.Context, sched Schedule) error
	DeleteSchedule(ctx context.Context, id string) (bool, error)

	// Run history. ListRuns returns the newest entries first.
	AppendRun(ctx context.Context, e RunEntry) error
	ListRuns(ctx context.Context, scheduleID string, limit int) ([]RunEntry, error)

	// Delivery dedup windows; persistent drivers keep them across restarts.
	// GetDedup reports the stored expiry and whether the key exists.
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (time.Time, bool, error)

	Close() error
}

// Open builds the store cfg.Driver names. An empty or "none" driver
// disables persistence: the Store comes back nil with no error, and
// callers run stateless.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(), nil
	case "file":
		return newFileStore(cfg, log)
	case "sqlite", "sqlite3":
		return newSQLiteStore(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
