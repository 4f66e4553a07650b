package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// memStore keeps everything in process memory. It backs the "memory"
// driver, serves as the fallback when storage is disabled, and keeps
// service tests free of filesystem setup. Run history is capped at
// runsKeepMax entries.
type memStore struct {
	mu        sync.Mutex
	schedules map[string]Schedule
	runs      []RunEntry
	dedup     map[string]time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memStore{
		schedules: map[string]Schedule{},
		dedup:     map[string]time.Time{},
	}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) ListSchedules(_ context.Context) ([]Schedule, error) {
	s.mu.Lock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched)
	}
	s.mu.Unlock()

	sortSchedules(out)
	return out, nil
}

func (s *memStore) GetSchedule(_ context.Context, id string) (Schedule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	return sched, ok, nil
}

func (s *memStore) PutSchedule(_ context.Context, sched Schedule) error {
	if strings.TrimSpace(sched.ID) == "" {
		return errors.New("schedule id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = sched
	return nil
}

func (s *memStore) DeleteSchedule(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return false, nil
	}
	delete(s.schedules, id)
	return true, nil
}

func (s *memStore) AppendRun(_ context.Context, e RunEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, e)
	if len(s.runs) > runsKeepMax {
		s.runs = s.runs[len(s.runs)-runsKeepMax:]
	}
	return nil
}

func (s *memStore) ListRuns(_ context.Context, scheduleID string, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RunEntry, 0, limit)
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if scheduleID != "" && s.runs[i].ScheduleID != scheduleID {
			continue
		}
		out = append(out, s.runs[i])
	}
	return out, nil
}

func (s *memStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedup[key] = until
	return nil
}

func (s *memStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.dedup[strings.TrimSpace(key)]
	return until, ok, nil
}
