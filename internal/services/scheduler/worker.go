package scheduler

import (
	"context"
	"math/rand/v2"
	"time"

	"cronshift/internal/storage"
	"cronshift/pkg/logx"
)

// enqueue hands a fire to the worker pool without blocking. The cron
// runner calls this from its own goroutine, so a full queue rejects
// the fire on the spot and the drop is recorded before returning.
func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()

	if q == nil {
		s.log.Debug("fire arrived while stopped", logx.String("schedule", t.fire.ScheduleID))
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("fire queue full",
			logx.String("schedule", t.fire.ScheduleID), logx.Int("capacity", cap(q)))
		s.recordOutcome(t.fire, storage.RunDropped, 0, "fire queue full", 0)
		s.publish("schedule.dropped", t.fire, 0, "fire queue full")
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan task) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q:
			// A buffered task can win the select race against a
			// cancelled context; queued fires are dropped on shutdown.
			if ctx.Err() != nil {
				return
			}
			s.execute(ctx, t)
		}
	}
}

// execute pushes one fire through the handler, retrying per config.
// Success means handed off; the delivery pipeline owns the webhook
// outcome from that point on.
func (s *Service) execute(ctx context.Context, t task) {
	start := time.Now()

	if !t.state.tryAcquire() {
		s.log.Debug("previous fire still in flight", logx.String("schedule", t.fire.ScheduleID))
		s.recordOutcome(t.fire, storage.RunSkipped, 0, "previous fire still in flight", time.Since(start))
		s.publish("schedule.skipped", t.fire, 0, "previous fire still in flight")
		return
	}
	defer t.state.release()

	s.mu.Lock()
	cfg, fire := s.cfg, s.fire
	s.mu.Unlock()

	if fire == nil {
		s.recordOutcome(t.fire, storage.RunDropped, 0, "no fire handler wired", time.Since(start))
		s.publish("schedule.dropped", t.fire, 0, "no fire handler wired")
		return
	}

	var err error
	attempts := 1 + cfg.RetryMax
	made := 0
	for n := 1; n <= attempts; n++ {
		made = n
		runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
		err = fire(runCtx, t.fire)
		cancel()
		if err == nil || n == attempts {
			break
		}
		delay := handoffDelay(cfg, n)
		s.log.Debug("fire handoff retry",
			logx.String("schedule", t.fire.ScheduleID), logx.Int("attempt", n+1),
			logx.Duration("in", delay), logx.Err(err))
		if !sleepCtx(ctx, delay) {
			err = ctx.Err()
			break
		}
	}

	took := time.Since(start)
	if err != nil {
		s.log.Warn("fire dropped", logx.String("schedule", t.fire.ScheduleID),
			logx.Int("attempts", made), logx.Duration("took", took), logx.Err(err))
		s.recordOutcome(t.fire, storage.RunDropped, made, err.Error(), took)
		s.publish("schedule.dropped", t.fire, made, err.Error())
		return
	}

	s.log.Debug("fire handed off",
		logx.String("schedule", t.fire.ScheduleID), logx.Int("attempts", made), logx.Duration("took", took))
	s.appendHistory(HistoryItem{
		ScheduleID: t.fire.ScheduleID,
		Name:       t.fire.Name,
		Started:    t.fire.FiredAt,
		Duration:   took,
		Status:     "fired",
	})
	s.publish("schedule.fired", t.fire, made, "")
}

// recordOutcome writes a scheduler-terminal outcome (skip, drop) to
// run history. Handed-off fires get their record from the delivery
// side instead, so each fire produces exactly one run row.
func (s *Service) recordOutcome(f Fire, status string, attempts int, errMsg string, took time.Duration) {
	s.appendHistory(HistoryItem{
		ScheduleID: f.ScheduleID,
		Name:       f.Name,
		Started:    f.FiredAt,
		Duration:   took,
		Status:     status,
		Error:      errMsg,
	})
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.store.AppendRun(ctx, storage.RunEntry{
		ScheduleID:   f.ScheduleID,
		Name:         f.Name,
		ScheduledFor: f.ScheduledFor,
		At:           time.Now().UTC(),
		Status:       status,
		Attempts:     attempts,
		Error:        errMsg,
		TookMS:       took.Milliseconds(),
	})
	if err != nil {
		s.log.Warn("run record write failed", logx.String("schedule", f.ScheduleID), logx.Err(err))
	}
}

func (s *Service) appendHistory(item HistoryItem) {
	s.mu.Lock()
	keep := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	if len(s.history) > keep {
		s.history = s.history[len(s.history)-keep:]
	}
}

// handoffDelay doubles from RetryBase per retry, jittered to 0.8-1.2x
// so synchronized schedules spread out, capped at RetryMaxDelay.
func handoffDelay(cfg Config, retry int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < retry && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)
	d = time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
	return min(d, cfg.RetryMaxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
