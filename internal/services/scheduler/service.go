package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"cronshift/internal/eventbus"
	rtsup "cronshift/internal/runtime/supervisor"
	"cronshift/internal/storage"
	"cronshift/pkg/logx"
)

// New builds a stopped scheduler. store may be nil (run records are
// then kept in memory only) and bus may be nil (no events). fire is
// required for triggers to go anywhere; a nil fire drops every trigger
// with a recorded error so misconfiguration shows up in run history
// instead of vanishing.
func New(cfg Config, store storage.Store, log logx.Logger, bus eventbus.Bus, fire FireFunc) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		store:   store,
		log:     log,
		bus:     bus,
		fire:    fire,
		entries: map[string]*entry{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config. Retry and timeout settings take effect on
// the next fire; worker and queue sizing take effect on the next
// Start (the app restarts the service when those change).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// NeedsRestart reports whether switching to cfg requires a stop/start
// cycle to take effect.
func (s *Service) NeedsRestart(cfg Config) bool {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()
	next := cfg.withDefaults()
	return cur.Workers != next.Workers || cur.QueueSize != next.QueueSize
}

// Start arms the registered schedules and brings up the worker pool.
// Idempotent; a Start racing a Stop waits for the drain to finish.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.draining != nil {
		drain := s.draining
		s.mu.Unlock()
		select {
		case <-drain:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	queue := make(chan task, s.cfg.QueueSize)
	s.queue = queue
	// Stored expressions are canonical UTC; the runner must never
	// consult the host timezone.
	s.runner = cron.New(cron.WithParser(cronRuntimeParser), cron.WithLocation(time.UTC))

	armed := 0
	for _, e := range s.entries {
		if s.armLocked(e) {
			armed++
		}
	}

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "scheduler"))),
		rtsup.WithCancelOnError(false),
	)
	sup, workers, total := s.sup, s.cfg.Workers, len(s.entries)
	s.runner.Start()
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, queue)
			return s.loopExit(c, "fire worker")
		}, rtsup.WithPublishFirstError(true))
	}

	s.log.Info("service started",
		logx.Int("workers", workers), logx.Int("schedules", total), logx.Int("armed", armed))
}

// loopExit classifies a worker return for the restart supervisor:
// clean during shutdown, restartable otherwise.
func (s *Service) loopExit(ctx context.Context, what string) error {
	s.mu.Lock()
	stopping := s.draining != nil
	s.mu.Unlock()
	switch {
	case stopping:
		return context.Canceled
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%s exited unexpectedly", what)
	}
}

// Stop disarms the cron runner and tears the workers down. Queued
// fires are dropped, not drained: a late webhook for a stale minute is
// worse than none. Blocks until done or ctx expires; cleanup finishes
// in the background either way.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return
	}
	if s.draining != nil {
		drain := s.draining
		s.mu.Unlock()
		select {
		case <-drain:
		case <-ctx.Done():
		}
		return
	}
	drain := make(chan struct{})
	s.draining = drain
	runner, sup := s.runner, s.sup
	s.runner = nil
	for _, e := range s.entries {
		e.entryID = 0
	}
	s.mu.Unlock()

	sup.Cancel()
	// In-flight cron callbacks finish before the queue goes away; they
	// only enqueue, so this resolves fast.
	if runner != nil {
		<-runner.Stop().Done()
	}

	go func() {
		defer close(drain)
		_ = sup.Wait(context.Background())
		s.mu.Lock()
		s.queue, s.sup, s.draining = nil, nil, nil
		s.mu.Unlock()
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-drain:
	case <-ctx.Done():
	}
}

// armLocked registers e with the running cron. Returns false while
// stopped, for disabled schedules, and for expressions the runtime
// parser rejects (which should not happen for validated writes).
func (s *Service) armLocked(e *entry) bool {
	if s.runner == nil || !e.sched.Enabled {
		return false
	}
	sched := e.sched
	st := e.state
	id, err := s.runner.AddFunc(sched.Cron, func() { s.trigger(sched, st) })
	if err != nil {
		s.log.Error("failed to arm schedule",
			logx.String("schedule", sched.ID), logx.String("cron", sched.Cron), logx.Err(err))
		return false
	}
	e.entryID = id
	return true
}

// trigger runs on the cron goroutine; it must not block.
func (s *Service) trigger(sched storage.Schedule, st *runState) {
	now := time.Now().UTC()
	s.enqueue(task{
		fire: Fire{
			ScheduleID:   sched.ID,
			Name:         sched.Name,
			Cron:         sched.Cron,
			WebhookURL:   sched.WebhookURL,
			ScheduledFor: now.Truncate(time.Minute),
			FiredAt:      now,
		},
		state: st,
	})
}

func (s *Service) publish(typ string, f Fire, attempts int, errMsg string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Payload: FireEvent{
		ScheduleID:   f.ScheduleID,
		Name:         f.Name,
		ScheduledFor: f.ScheduledFor,
		Attempts:     attempts,
		Error:        errMsg,
	}})
}
