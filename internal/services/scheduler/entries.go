package scheduler

import (
	"cronshift/internal/storage"
	"cronshift/pkg/logx"
)

// Upsert registers a schedule or replaces the registration with the
// same ID. Safe to call while stopped; the entry is armed on the next
// Start. Disabled schedules stay registered but never fire.
func (s *Service) Upsert(sched storage.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(sched)
}

func (s *Service) upsertLocked(sched storage.Schedule) {
	if e, ok := s.entries[sched.ID]; ok {
		s.disarmLocked(e)
		e.sched = sched
		s.armLocked(e)
		return
	}
	e := &entry{sched: sched, state: &runState{}}
	s.entries[sched.ID] = e
	s.armLocked(e)
}

func (s *Service) disarmLocked(e *entry) {
	if s.runner != nil && e.entryID != 0 {
		s.runner.Remove(e.entryID)
	}
	e.entryID = 0
}

// Remove drops the registration for id. Unknown IDs are a no-op.
// An in-flight fire of the schedule finishes undisturbed.
func (s *Service) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	s.disarmLocked(e)
	delete(s.entries, id)
}

// Sync reconciles the registered set against scheds: registrations
// missing from scheds are removed, everything else is upserted. Used
// on startup and after storage-level imports.
func (s *Service) Sync(scheds []storage.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(scheds))
	for _, sc := range scheds {
		keep[sc.ID] = struct{}{}
	}
	removed := 0
	for id, e := range s.entries {
		if _, ok := keep[id]; ok {
			continue
		}
		s.disarmLocked(e)
		delete(s.entries, id)
		removed++
	}
	for _, sc := range scheds {
		s.upsertLocked(sc)
	}
	s.log.Debug("schedules synced", logx.Int("total", len(scheds)), logx.Int("removed", removed))
}
