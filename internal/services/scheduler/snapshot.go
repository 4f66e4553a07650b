package scheduler

import (
	"cmp"
	"slices"
	"time"

	"cronshift/pkg/cronx"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled: s.cfg.Enabled,
		Running: s.queue != nil && s.draining == nil,
		Workers: s.cfg.Workers,
	}
	if s.queue != nil {
		snap.QueueLen = len(s.queue)
	}
	c := s.runner
	snap.Entries = make([]EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		info := EntryInfo{
			ID:      e.sched.ID,
			Name:    e.sched.Name,
			Cron:    e.sched.Cron,
			Summary: cronx.Summary(cronx.ParseOrDefault(e.sched.Cron)),
			Enabled: e.sched.Enabled,
		}
		if c != nil && e.entryID != 0 {
			ce := c.Entry(e.entryID)
			info.Next = ce.Next
			info.Prev = ce.Prev
		}
		snap.Entries = append(snap.Entries, info)
	}
	s.mu.Unlock()

	slices.SortFunc(snap.Entries, func(a, b EntryInfo) int { return cmp.Compare(a.ID, b.ID) })

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

// PreviewNext returns the next n trigger instants of expr after from,
// in UTC. expr must be in the canonical 5-field form.
func PreviewNext(expr string, from time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	sched, err := cronRuntimeParser.Parse(expr)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	t := from.UTC()
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
