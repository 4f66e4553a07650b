//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"cronshift/pkg/logx"
)

//go:embed migrations.sql
var schemaFS embed.FS

// sweepInterval bounds how often expired dedup rows get deleted.
const sweepInterval = 5 * time.Minute

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	runWrites atomic.Uint64
	lastSweep atomic.Int64 // unix nano
}

func newSQLiteStore(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite driver needs storage.path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	// Pragmas ride the DSN so every new connection picks them up.
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	if cfg.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	}

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	// Single connection: SQLite allows one writer anyway, and this keeps
	// WAL checkpointing predictable.
	db.SetMaxOpenConns(1)

	st := &sqliteStore{db: db, log: log}
	if err := st.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) ensureSchema(ctx context.Context) error {
	ddl, err := schemaFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// Times are stored as RFC 3339 text; SQLite has no native time type.
func sqlTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseSQLTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

// orNull maps empty strings to SQL NULL.
func orNull(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// ---- Schedules ----

const scheduleCols = `id, name, cron, timezone, webhook_url, enabled, created_at, updated_at`

func (s *sqliteStore) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id string) (Schedule, bool, error) {
	sched, err := scanSchedule(s.db.QueryRowContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Schedule{}, false, nil
	case err != nil:
		return Schedule{}, false, err
	}
	return sched, true, nil
}

func (s *sqliteStore) PutSchedule(ctx context.Context, sched Schedule) error {
	if strings.TrimSpace(sched.ID) == "" {
		return errors.New("schedule id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(`+scheduleCols+`)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, cron=excluded.cron, timezone=excluded.timezone,
		   webhook_url=excluded.webhook_url, enabled=excluded.enabled, updated_at=excluded.updated_at`,
		sched.ID, sched.Name, sched.Cron, orNull(sched.Timezone), sched.WebhookURL,
		sched.Enabled, sqlTime(sched.CreatedAt), sqlTime(sched.UpdatedAt))
	return err
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (Schedule, error) {
	var (
		sched              Schedule
		tz                 sql.NullString
		createdAt, updated string
	)
	err := row.Scan(&sched.ID, &sched.Name, &sched.Cron, &tz, &sched.WebhookURL,
		&sched.Enabled, &createdAt, &updated)
	if err != nil {
		return Schedule{}, err
	}
	sched.Timezone = tz.String
	sched.CreatedAt = parseSQLTime(createdAt)
	sched.UpdatedAt = parseSQLTime(updated)
	return sched, nil
}

// ---- Runs ----

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(schedule_id, name, scheduled_for, at, status, attempts, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.ScheduleID, orNull(e.Name), sqlTime(e.ScheduledFor), sqlTime(e.At),
		e.Status, e.Attempts, orNull(e.Error), e.TookMS)
	if err != nil {
		return err
	}
	if s.runWrites.Add(1)%runsCompactEvery == 0 {
		s.pruneRuns(ctx)
	}
	return nil
}

// pruneRuns keeps only the newest runsKeepMax rows so history reads
// stay bounded. A failed prune costs nothing but disk.
func (s *sqliteStore) pruneRuns(ctx context.Context) {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id < (
		   SELECT COALESCE(MIN(id), 0) FROM (SELECT id FROM runs ORDER BY id DESC LIMIT ?)
		 )`, runsKeepMax)
	if err != nil {
		s.log.Debug("runs prune failed", logx.Err(err))
	}
}

func (s *sqliteStore) ListRuns(ctx context.Context, scheduleID string, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT schedule_id, name, scheduled_for, at, status, attempts, err, took_ms FROM runs`
	args := []any{}
	if scheduleID != "" {
		query += ` WHERE schedule_id = ?`
		args = append(args, scheduleID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var (
			e                RunEntry
			name, errStr     sql.NullString
			scheduledFor, at string
		)
		if err := rows.Scan(&e.ScheduleID, &name, &scheduledFor, &at,
			&e.Status, &e.Attempts, &errStr, &e.TookMS); err != nil {
			return nil, err
		}
		e.Name = name.String
		e.Error = errStr.String
		e.ScheduledFor = parseSQLTime(scheduledFor)
		e.At = parseSQLTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- Dedup ----

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli())
	if err != nil {
		return err
	}
	s.maybeSweep()
	return nil
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, strings.TrimSpace(key)).Scan(&ms)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

// maybeSweep deletes expired dedup rows at most once per sweepInterval.
// The CAS makes concurrent writers elect a single sweeper.
func (s *sqliteStore) maybeSweep() {
	now := time.Now()
	last := s.lastSweep.Load()
	if now.Sub(time.Unix(0, last)) < sweepInterval {
		return
	}
	if !s.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, now.UnixMilli()); err != nil {
		s.log.Debug("dedup sweep failed", logx.Err(err))
	}
}
