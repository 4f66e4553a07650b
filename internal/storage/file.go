package storage

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"cronshift/pkg/logx"
)

// fileStore persists to plain files next to the configured path, no
// database needed.
//
// Layout (prefix = configured path with its extension stripped):
//   - <prefix>.schedules.json  full snapshot, atomically replaced
//   - <prefix>.runs.jsonl      append-only JSON Lines, trimmed in place
//   - <prefix>.dedup.jsonl     append-only journal of dedup windows
//
// Schedules are few and read constantly, so they live in memory and
// every mutation rewrites the snapshot. Runs and dedup writes are
// appends; both files get rewritten once enough entries accumulate.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	schedulesPath string
	schedules     map[string]Schedule

	runsPath  string
	runsFile  *os.File
	runWrites int

	dedupPath   string
	dedupFile   *os.File
	dedup       map[string]time.Time
	dedupWrites int
}

const (
	runsCompactEvery  = 2048
	runsKeepMax       = 10000
	dedupCompactEvery = 1024
)

// dedupRow is one journal line; on replay the latest row for a key wins.
type dedupRow struct {
	Key   string    `json:"key"`
	Until time.Time `json:"until"`
}

var errStoreClosed = errors.New("store is closed")

func newFileStore(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("file driver needs storage.path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(path, filepath.Ext(path))
	st := &fileStore{
		log:           log,
		schedulesPath: prefix + ".schedules.json",
		runsPath:      prefix + ".runs.jsonl",
		dedupPath:     prefix + ".dedup.jsonl",
		schedules:     map[string]Schedule{},
		dedup:         map[string]time.Time{},
	}

	if err := readJSONFile(st.schedulesPath, &st.schedules); err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	if err := st.replayDedup(); err != nil {
		return nil, fmt.Errorf("load dedup journal: %w", err)
	}

	var err error
	if st.runsFile, err = appendHandle(st.runsPath); err != nil {
		return nil, err
	}
	if st.dedupFile, err = appendHandle(st.dedupPath); err != nil {
		_ = st.runsFile.Close()
		return nil, err
	}
	return st, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.runsFile != nil {
		errs = append(errs, s.runsFile.Close())
		s.runsFile = nil
	}
	if s.dedupFile != nil {
		errs = append(errs, s.dedupFile.Close())
		s.dedupFile = nil
	}
	return errors.Join(errs...)
}

// ---- Schedules ----

func (s *fileStore) ListSchedules(_ context.Context) ([]Schedule, error) {
	s.mu.Lock()
	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched)
	}
	s.mu.Unlock()

	sortSchedules(out)
	return out, nil
}

func (s *fileStore) GetSchedule(_ context.Context, id string) (Schedule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	return sched, ok, nil
}

func (s *fileStore) PutSchedule(_ context.Context, sched Schedule) error {
	if strings.TrimSpace(sched.ID) == "" {
		return errors.New("schedule id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = sched
	return s.saveSchedulesLocked()
}

func (s *fileStore) DeleteSchedule(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return false, nil
	}
	delete(s.schedules, id)
	return true, s.saveSchedulesLocked()
}

func (s *fileStore) saveSchedulesLocked() error {
	return writeFileAtomic(s.schedulesPath, func(w *bufio.Writer) error {
		return json.NewEncoder(w).Encode(s.schedules)
	})
}

func sortSchedules(list []Schedule) {
	slices.SortFunc(list, func(a, b Schedule) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// ---- Runs ----

func (s *fileStore) AppendRun(_ context.Context, e RunEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return errStoreClosed
	}
	if err := json.NewEncoder(s.runsFile).Encode(e); err != nil {
		return err
	}
	s.runWrites++
	if s.runWrites%runsCompactEvery == 0 {
		if err := s.compactRunsLocked(); err != nil {
			s.log.Debug("runs compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) ListRuns(_ context.Context, scheduleID string, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := scanRuns(s.runsPath, scheduleID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}
	// File order is oldest first; callers get newest first.
	slices.Reverse(matches)
	return matches, nil
}

func scanRuns(path, scheduleID string) ([]RunEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []RunEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e RunEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if scheduleID == "" || e.ScheduleID == scheduleID {
			out = append(out, e)
		}
	}
	return out, sc.Err()
}

// compactRunsLocked trims the jsonl file to the newest runsKeepMax
// lines so history reads stay bounded.
func (s *fileStore) compactRunsLocked() error {
	keep, err := tailLines(s.runsPath, runsKeepMax)
	if err != nil || keep == nil {
		return err
	}
	err = writeFileAtomic(s.runsPath, func(w *bufio.Writer) error {
		for _, line := range keep {
			if _, err := w.WriteString(line); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The old handle still appends to the renamed-away inode; reopen.
	if s.runsFile != nil {
		_ = s.runsFile.Close()
	}
	s.runsFile, err = appendHandle(s.runsPath)
	return err
}

// ---- Dedup ----

func (s *fileStore) PutDedup(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupFile == nil {
		return errStoreClosed
	}
	s.dedup[key] = until

	if err := json.NewEncoder(s.dedupFile).Encode(dedupRow{Key: key, Until: until}); err != nil {
		return err
	}
	s.dedupWrites++
	if s.dedupWrites%dedupCompactEvery == 0 {
		if err := s.compactDedupLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.dedup[strings.TrimSpace(key)]
	return until, ok, nil
}

// replayDedup rebuilds the window map from the journal, dropping
// entries that have already expired.
func (s *fileStore) replayDedup() error {
	f, err := os.Open(s.dedupPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	now := time.Now()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var row dedupRow
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil || row.Key == "" {
			continue
		}
		if row.Until.After(now) {
			s.dedup[row.Key] = row.Until
		} else {
			delete(s.dedup, row.Key)
		}
	}
	return sc.Err()
}

// compactDedupLocked rewrites the journal with only live windows and
// moves the append handle to the new file.
func (s *fileStore) compactDedupLocked() error {
	now := time.Now()
	for k, until := range s.dedup {
		if !until.After(now) {
			delete(s.dedup, k)
		}
	}

	err := writeFileAtomic(s.dedupPath, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		for k, until := range s.dedup {
			if err := enc.Encode(dedupRow{Key: k, Until: until}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.dedupFile != nil {
		_ = s.dedupFile.Close()
	}
	s.dedupFile, err = appendHandle(s.dedupPath)
	return err
}

// ---- File helpers ----

func appendHandle(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

// readJSONFile decodes path into v; a missing file leaves v untouched.
func readJSONFile(path string, v any) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}

// writeFileAtomic writes through a tmp file and renames it over path,
// so readers never observe a partial write.
func writeFileAtomic(path string, write func(*bufio.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	// Sync before the rename: a crash must not leave path pointing at
	// an empty inode.
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// tailLines returns the last n lines of path, or nil when the file
// already fits.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) <= n {
		return nil, nil
	}
	return lines[len(lines)-n:], nil
}
