package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cronshift/internal/eventbus"
	rtsup "cronshift/internal/runtime/supervisor"
	"cronshift/internal/storage"
	"cronshift/pkg/logx"
)

var (
	ErrDisabled  = errors.New("dispatch disabled")
	ErrQueueFull = errors.New("dispatch queue full")
	ErrStopped   = errors.New("dispatch stopped")
)

// job rides the queue; the dedup key is computed at intake so workers
// never hash.
type job struct {
	d        Delivery
	dedupKey string
}

type dedupWrite struct {
	key   string
	until time.Time
}

// intake is the config snapshot one Enqueue works with, taken under
// the service lock so a concurrent Apply cannot tear it.
type intake struct {
	q          chan job
	window     time.Duration
	maxEntries int
	persist    bool
	store      storage.Store
	pch        chan dedupWrite
}

// Service is the delivery pipeline: bounded queue, worker pool, rate
// limit, retry with backoff, and a dedup window. All methods may be
// called from any goroutine.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	client *http.Client
	bus    eventbus.Bus
	store  storage.Store

	cfg     Config // guarded by mu
	limiter *rate.Limiter

	queue   chan job
	dedupCh chan dedupWrite
	sup     *rtsup.Supervisor

	draining chan struct{} // non-nil while a stop is in flight
	intakeWG sync.WaitGroup

	dedup *suppressor

	hmu     sync.Mutex
	history []HistoryItem
}

// New builds a stopped dispatcher. client may be nil (a default client
// is used); store may be nil (run records and persistent dedup are then
// skipped); bus may be nil (no events).
func New(cfg Config, client *http.Client, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if client == nil {
		// Timeout stays 0: per-attempt deadlines come from request contexts.
		client = &http.Client{}
	}
	s := &Service{
		client: client,
		log:    log,
		bus:    bus,
		store:  store,
		dedup:  newSuppressor(),
	}
	s.configure(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config; the new rate takes effect on the next send.
// Worker and queue size changes need a Stop/Start cycle.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configure(cfg)
}

// configure must run with mu held (or before the service is shared).
func (s *Service) configure(cfg Config) {
	s.cfg = cfg.withDefaults()
	// Token bucket with burst = rate, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerSec), s.cfg.RatePerSec)
}

// Start brings up the worker pool. Idempotent; a Start racing a Stop
// waits for the drain to finish first.
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

	queue := make(chan job, s.cfg.QueueSize)
	s.queue = queue
	if s.cfg.PersistDedup && s.store != nil {
		s.dedupCh = make(chan dedupWrite, 1024)
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "dispatch"))),
		// One bad webhook must never take the app down.
		rtsup.WithCancelOnError(false),
	)
	sup, dch, st, workers := s.sup, s.dedupCh, s.store, s.cfg.Workers
	s.mu.Unlock()

	if dch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, dch, st)
			return s.loopExit(c, "dedup persist loop")
		}, rtsup.WithPublishFirstError(true))
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, queue)
			return s.loopExit(c, "delivery worker")
		}, rtsup.WithPublishFirstError(true))
	}

	s.log.Info("service started", logx.Int("workers", workers), logx.Int("queue_cap", cap(queue)))
}

// loopExit classifies a loop return for the restart supervisor: clean
// during shutdown, restartable otherwise.
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

// Stop blocks new intake and drains queued deliveries until ctx runs
// out; at the deadline remaining work is abandoned.
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
	q, dch, sup := s.queue, s.dedupCh, s.sup
	s.mu.Unlock()

	// The drain runs detached so callers can give up at their deadline
	// without leaking half-stopped state.
	go func() {
		defer close(drain)
		// In-flight enqueues finish before the queue closes.
		s.intakeWG.Wait()
		closeQuiet(dch)
		closeQuiet(q)
		_ = sup.Wait(context.Background())
		s.mu.Lock()
		s.queue, s.dedupCh, s.sup, s.draining = nil, nil, nil, nil
		s.mu.Unlock()
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-drain:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func closeQuiet[T any](ch chan T) {
	if ch == nil {
		return
	}
	defer func() { _ = recover() }()
	close(ch)
}

// Enqueue admits one delivery for async sending. It never blocks: a
// full queue returns ErrQueueFull and the caller decides what to
// record. A suppressed duplicate returns nil.
func (s *Service) Enqueue(ctx context.Context, d Delivery) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	switch {
	case !s.cfg.Enabled:
		s.mu.Unlock()
		return ErrDisabled
	case s.queue == nil || s.draining != nil:
		s.mu.Unlock()
		return ErrStopped
	}
	in := intake{
		q:          s.queue,
		window:     s.cfg.DedupWindow,
		maxEntries: s.cfg.DedupMaxEntries,
		persist:    s.cfg.PersistDedup,
		store:      s.store,
		pch:        s.dedupCh,
	}
	s.intakeWG.Add(1)
	s.mu.Unlock()
	defer s.intakeWG.Done()

	key := dedupKey(d)
	if in.window > 0 && key != "" && !s.admitKey(ctx, key, in) {
		s.publish("delivery.deduped", d, key, 0, "")
		s.log.Debug("duplicate delivery suppressed",
			logx.String("schedule", d.ScheduleID), logx.Time("scheduled_for", d.ScheduledFor))
		return nil
	}

	s.publish("delivery.queued", d, key, 0, "")
	select {
	case in.q <- job{d: d, dedupKey: key}:
		return nil
	default:
		s.publish("delivery.dropped", d, key, 0, ErrQueueFull.Error())
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			switch {
			case !ok:
				return
			case ctx.Err() != nil:
				// Hard cancel beats a buffered job; graceful Stop
				// drains instead by closing the queue.
				return
			}
			s.deliverWithRetry(ctx, j)
		}
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled: s.cfg.Enabled,
		Running: s.queue != nil && s.draining == nil,
		Workers: s.cfg.Workers,
	}
	if s.queue != nil {
		snap.QueueLen = len(s.queue)
		snap.QueueCap = cap(s.queue)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) appendHistory(item HistoryItem) {
	s.mu.Lock()
	keep := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > keep {
		s.history = s.history[len(s.history)-keep:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, d Delivery, key string, httpStatus int, errMsg string) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Payload: DeliveryEvent{
		ScheduleID:   d.ScheduleID,
		Name:         d.Name,
		ScheduledFor: d.ScheduledFor,
		Key:          key,
		At:           now,
		HTTPStatus:   httpStatus,
		Error:        errMsg,
	}})
}
