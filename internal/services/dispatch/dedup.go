package dispatch

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"strconv"
	"sync"
	"time"

	"cronshift/internal/storage"
)

// dedupKey identifies one fire: the same schedule due at the same
// minute hashes to the same key regardless of when it was enqueued.
func dedupKey(d Delivery) string {
	if d.ScheduleID == "" {
		return ""
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d", d.ScheduleID, d.ScheduledFor.Unix())
	return strconv.FormatUint(h.Sum64(), 16)
}

// suppressor tracks per-key suppress-until times for the dedup window.
type suppressor struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newSuppressor() *suppressor {
	return &suppressor{seen: map[string]time.Time{}}
}

// active reports whether key is still inside its window.
func (x *suppressor) active(key string, now time.Time) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	until, ok := x.seen[key]
	return ok && now.Before(until)
}

// adopt records a window learned from storage.
func (x *suppressor) adopt(key string, until time.Time) {
	x.mu.Lock()
	x.seen[key] = until
	x.mu.Unlock()
}

// mark opens a window for key, dropping expired entries as it goes.
// When the cap is still exceeded afterwards, the entries closest to
// expiry go first.
func (x *suppressor) mark(key string, until time.Time, maxEntries int, now time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.seen[key] = until
	for k, t := range x.seen {
		if !now.Before(t) {
			delete(x.seen, k)
		}
	}
	if maxEntries <= 0 || len(x.seen) <= maxEntries {
		return
	}

	type entry struct {
		key   string
		until time.Time
	}
	all := make([]entry, 0, len(x.seen))
	for k, t := range x.seen {
		all = append(all, entry{k, t})
	}
	slices.SortFunc(all, func(a, b entry) int { return a.until.Compare(b.until) })
	for _, e := range all[:len(all)-maxEntries] {
		delete(x.seen, e.key)
	}
}

// admitKey reports whether this fire may proceed; false means an
// identical fire is still inside its dedup window. With PersistDedup
// on, storage is consulted so the window survives restarts, and new
// windows are queued for a best-effort write.
func (s *Service) admitKey(ctx context.Context, key string, in intake) bool {
	now := time.Now()
	if s.dedup.active(key, now) {
		return false
	}

	if in.persist && in.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 25*time.Millisecond)
		until, ok, err := in.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dedup.adopt(key, until)
			return false
		}
	}

	until := now.Add(in.window)
	s.dedup.mark(key, until, in.maxEntries, now)
	if in.persist && in.store != nil && in.pch != nil {
		select {
		case in.pch <- dedupWrite{key: key, until: until}:
		default:
			// The persist queue is lossy on purpose; memory still holds
			// the window.
		}
	}
	return true
}

// persistLoop writes dedup windows to storage until the channel closes
// or ctx ends. Failed writes are dropped; the in-memory window already
// covers the current process.
func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite, st storage.Store) {
	if ch == nil || st == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			_ = st.PutDedup(cctx, w.key, w.until)
			cancel()
		}
	}
}
