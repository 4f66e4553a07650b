package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cronshift/internal/storage"
	"cronshift/pkg/logx"
)

func testConfig() Config {
	return Config{
		Enabled:        true,
		Workers:        2,
		QueueSize:      8,
		RatePerSec:     1000,
		RequestTimeout: 2 * time.Second,
		RetryMax:       1,
		RetryBase:      time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	}
}

func testDelivery(id, url string) Delivery {
	now := time.Now().UTC()
	return Delivery{
		ScheduleID:   id,
		Name:         "sched-" + id,
		Cron:         "*/15 * * * *",
		WebhookURL:   url,
		ScheduledFor: now.Truncate(time.Minute),
		FiredAt:      now,
	}
}

// waitForRun polls until a run record for scheduleID appears.
func waitForRun(t *testing.T, store storage.Store, scheduleID string) storage.RunEntry {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		runs, err := store.ListRuns(context.Background(), scheduleID, 10)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) > 0 {
			return runs[0]
		}
		if time.Now().After(deadline) {
			t.Fatalf("no run recorded for %q", scheduleID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDeliverPostsPayload(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()

	type got struct {
		method      string
		contentType string
		body        payload
	}
	received := make(chan got, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		received <- got{method: r.Method, contentType: r.Header.Get("Content-Type"), body: p}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	s := New(testConfig(), srv.Client(), logx.Nop(), nil, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	t.Cleanup(func() { s.Stop(context.Background()) })

	d := testDelivery("hook", srv.URL)
	if err := s.Enqueue(ctx, d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case g := <-received:
		if g.method != http.MethodPost {
			t.Fatalf("method = %q, want POST", g.method)
		}
		if g.contentType != "application/json" {
			t.Fatalf("content-type = %q, want application/json", g.contentType)
		}
		if g.body.ScheduleID != "hook" {
			t.Fatalf("payload schedule_id = %q, want %q", g.body.ScheduleID, "hook")
		}
		if g.body.Cron != d.Cron {
			t.Fatalf("payload cron = %q, want %q", g.body.Cron, d.Cron)
		}
		if g.body.Summary == "" {
			t.Fatal("payload summary is empty")
		}
		if !g.body.ScheduledFor.Equal(d.ScheduledFor) {
			t.Fatalf("payload scheduled_for = %v, want %v", g.body.ScheduledFor, d.ScheduledFor)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("webhook was never called")
	}

	run := waitForRun(t, store, "hook")
	if run.Status != storage.RunDelivered {
		t.Fatalf("run status = %q, want %q", run.Status, storage.RunDelivered)
	}
	if run.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", run.Attempts)
	}
}

func TestRetryUntilSuccess(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.RetryMax = 3
	s := New(cfg, srv.Client(), logx.Nop(), nil, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	t.Cleanup(func() { s.Stop(context.Background()) })

	if err := s.Enqueue(ctx, testDelivery("flaky", srv.URL)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	run := waitForRun(t, store, "flaky")
	if run.Status != storage.RunDelivered {
		t.Fatalf("run status = %q, want %q (err %q)", run.Status, storage.RunDelivered, run.Error)
	}
	if run.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", run.Attempts)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("webhook hits = %d, want 3", got)
	}
}

func TestExhaustedRetriesRecordFailed(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	s := New(testConfig(), srv.Client(), logx.Nop(), nil, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	t.Cleanup(func() { s.Stop(context.Background()) })

	if err := s.Enqueue(ctx, testDelivery("dead", srv.URL)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	run := waitForRun(t, store, "dead")
	if run.Status != storage.RunFailed {
		t.Fatalf("run status = %q, want %q", run.Status, storage.RunFailed)
	}
	if run.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2 (retry_max 1)", run.Attempts)
	}
	if run.Error == "" {
		t.Fatal("failed run has no error")
	}
}

func TestDedupSuppressesRepeatFire(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.DedupWindow = time.Minute
	s := New(cfg, srv.Client(), logx.Nop(), nil, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	t.Cleanup(func() { s.Stop(context.Background()) })

	d := testDelivery("twice", srv.URL)
	if err := s.Enqueue(ctx, d); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	// Same schedule, same due minute: suppressed without error.
	if err := s.Enqueue(ctx, d); err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}

	waitForRun(t, store, "twice")
	// Give a suppressed duplicate a moment to (incorrectly) land.
	time.Sleep(50 * time.Millisecond)
	if got := hits.Load(); got != 1 {
		t.Fatalf("webhook hits = %d, want 1", got)
	}

	// A different due minute is a new fire.
	d2 := d
	d2.ScheduledFor = d.ScheduledFor.Add(time.Minute)
	if err := s.Enqueue(ctx, d2); err != nil {
		t.Fatalf("third Enqueue: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for hits.Load() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("webhook hits = %d, want 2", hits.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnqueueStateErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Enabled = false
	s := New(cfg, nil, logx.Nop(), nil, nil)
	if err := s.Enqueue(context.Background(), testDelivery("x", "http://127.0.0.1:0")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Enqueue on disabled = %v, want ErrDisabled", err)
	}

	cfg.Enabled = true
	s = New(cfg, nil, logx.Nop(), nil, nil)
	// Enabled but never started.
	if err := s.Enqueue(context.Background(), testDelivery("y", "http://127.0.0.1:0")); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue before Start = %v, want ErrStopped", err)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	s := New(testConfig(), srv.Client(), logx.Nop(), nil, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	for i := 0; i < 5; i++ {
		if err := s.Enqueue(ctx, testDelivery("drain", srv.URL)); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	if got := hits.Load(); got != 5 {
		t.Fatalf("webhook hits after drain = %d, want 5", got)
	}
	if err := s.Enqueue(context.Background(), testDelivery("late", srv.URL)); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue after Stop = %v, want ErrStopped", err)
	}
}
