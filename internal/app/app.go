// Package app is the composition root of cronshiftd: it loads the
// config, opens storage, wires the scheduler's fires into the webhook
// dispatcher, and exposes everything over the HTTP API. It also owns
// the hot-reload loop that re-applies config changes to live services.
package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"cronshift/internal/config"
	"cronshift/internal/eventbus"
	rtsup "cronshift/internal/runtime/supervisor"
	"cronshift/internal/services/api"
	"cronshift/internal/services/dispatch"
	"cronshift/internal/services/pprof"
	"cronshift/internal/services/scheduler"
	"cronshift/internal/storage"
	"cronshift/pkg/logx"
)

type App struct {
	cfgPath string

	log   logx.Logger
	logs  *logx.Service
	cfgm  *config.Manager
	bus   eventbus.Bus
	store storage.Store

	sched *scheduler.Service
	disp  *dispatch.Service
	api   *api.Service
	prof  *pprof.Service

	sup *rtsup.Supervisor // set by Start
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	fail := func(err error) (*App, error) {
		logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()

	// Storage. A missing/disabled section falls back to the volatile
	// memory store so the API and scheduler stay usable; schedules just
	// don't survive restarts.
	var store storage.Store
	if sc, persistent, err := mapStorageConfig(cfg); err != nil {
		return fail(err)
	} else if persistent {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return fail(err)
		}
		store = st
		log.Info("storage opened", logx.String("driver", sc.Driver))
	} else {
		store = storage.NewMemory()
		log.Info("storage disabled; schedules will not survive restarts")
	}

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return fail(err)
	}
	disp := dispatch.New(dcfg, nil, log.With(logx.String("comp", "dispatch")), bus, store)

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return fail(err)
	}
	sched := scheduler.New(scfg, store, log.With(logx.String("comp", "scheduler")), bus, fireToDispatch(disp))

	acfg, err := mapAPIConfig(cfg)
	if err != nil {
		return fail(err)
	}
	apiSvc := api.New(acfg, api.Deps{
		Store:     store,
		Scheduler: sched,
		Dispatch:  disp,
	}, log.With(logx.String("comp", "api")))

	pcfg, err := mapPprofConfig(cfg)
	if err != nil {
		return fail(err)
	}
	profSvc := pprof.New(pcfg, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sched:   sched,
		disp:    disp,
		api:     apiSvc,
		prof:    profSvc,
	}, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// fireToDispatch adapts due triggers into delivery jobs. The scheduler
// retries the handoff on queue-full; once Enqueue accepts, the
// dispatcher owns the outcome.
func fireToDispatch(d *dispatch.Service) scheduler.FireFunc {
	return func(ctx context.Context, f scheduler.Fire) error {
		return d.Enqueue(ctx, dispatch.Delivery{
			ScheduleID:   f.ScheduleID,
			Name:         f.Name,
			Cron:         f.Cron,
			WebhookURL:   f.WebhookURL,
			ScheduledFor: f.ScheduledFor,
			FiredAt:      f.FiredAt,
		})
	}
}

// Done closes when the run context ends, on a fatal component error
// or an explicit Stop. Before Start it is already closed.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return a.sup.Context().Done()
}

// Err reports the first fatal error the root supervisor saw; nil
// before Start and after a clean run.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.api.SetSupervisor(a.sup)
	run := a.sup.Context()

	// Reloads are transactional: a config that fails validation is
	// rejected before it reaches any service.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	// Register stored schedules before anything can fire.
	if err := a.syncSchedules(run); err != nil {
		return err
	}

	// Delivery pipeline before triggers, surfaces last, so the first
	// fire always has a sink. Disabled services ignore Start.
	a.disp.Start(run)
	a.sched.Start(run)
	a.api.Start(run)
	a.prof.Start(run)

	a.sup.Go("eventbus.log", a.logEvents)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// logEvents mirrors bus traffic into debug logs. Debug level on
// purpose: a minutely schedule would otherwise flood the log.
func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// reloadLoop applies validated config updates to the live services.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		var cfg *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			cfg = drainNewest(sub, c)
		}

		sections, attrs := config.SummarizeChange(last, cfg)
		last = cfg
		if len(sections) == 0 {
			// Apply anyway: the diff is a logging aid, not a gate.
			a.applyReload(ctx, cfg)
			a.log.Info("config reloaded (no changes)")
			continue
		}

		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Debug("config change summary", fields...)
		if slices.Contains(sections, "storage") {
			a.log.Warn("storage config changed; takes effect on restart")
		}
		a.applyReload(ctx, cfg)
		a.bus.Publish(eventbus.Event{Type: "config.applied", Time: time.Now(), Payload: sections})
		a.log.Info("config reloaded", fields...)
	}
}

// drainNewest empties sub and keeps the most recent config, so a burst
// of file events collapses into one apply.
func drainNewest(sub <-chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case c := <-sub:
			if c != nil {
				cur = c
			}
		default:
			return cur
		}
	}
}

// applyReload pushes a validated config into the live services.
func (a *App) applyReload(ctx context.Context, cfg *config.Config) {
	// Logging first so later apply-logs already use the new level.
	a.logs.Apply(logConfig(cfg))

	// Dispatch before scheduler, so an enable flip has the sink up
	// before triggers resume.
	if dcfg, err := mapDispatchConfig(cfg); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		prevEnabled := a.disp.Enabled()
		a.disp.Apply(dcfg)
		switch {
		case prevEnabled && !dcfg.Enabled:
			a.log.Info("dispatch disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			a.disp.Stop(stopCtx)
			cancel()
		case !prevEnabled && dcfg.Enabled:
			a.log.Info("dispatch enabled via config")
			a.disp.Start(ctx)
		}
	}

	if scfg, err := mapSchedulerConfig(cfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		prevEnabled := a.sched.Enabled()
		restart := a.sched.NeedsRestart(scfg)
		a.sched.Apply(scfg)
		switch {
		case prevEnabled && !scfg.Enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		case !prevEnabled && scfg.Enabled:
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
		case scfg.Enabled && restart:
			a.log.Info("scheduler restarting to apply worker/queue changes")
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
			a.sched.Start(ctx)
		}
	}

	if acfg, err := mapAPIConfig(cfg); err != nil {
		a.log.Warn("invalid api config; keeping previous", logx.Err(err))
	} else {
		a.api.Reconfigure(ctx, acfg)
	}

	if pcfg, err := mapPprofConfig(cfg); err != nil {
		a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
	} else {
		a.prof.Reconfigure(ctx, pcfg)
	}
}

// syncSchedules loads the stored schedules into the scheduler. The
// registrations survive scheduler stop/start, so this runs once at boot
// and the API keeps them current afterwards.
func (a *App) syncSchedules(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	scheds, err := a.store.ListSchedules(loadCtx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	a.sched.Sync(scheds)
	a.log.Info("schedules loaded", logx.Int("count", len(scheds)))
	return nil
}

type stopStep struct {
	name   string
	budget time.Duration
	fn     func(context.Context) error
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Unwind the background loops first so a reload cannot race the
	// teardown.
	a.sup.Cancel()

	// Intake first (api), then triggers, then the delivery pipeline, so
	// nothing new lands while each layer drains. The supervisor wait
	// goes last; by then the loops it owns have no work left.
	steps := []stopStep{
		{"api", 2 * time.Second, func(c context.Context) error { a.api.Stop(c); return nil }},
		{"scheduler", 3 * time.Second, func(c context.Context) error { a.sched.Stop(c); return nil }},
		{"dispatch", 5 * time.Second, func(c context.Context) error { a.disp.Stop(c); return nil }},
		{"pprof", time.Second, func(c context.Context) error { a.prof.Stop(c); return nil }},
		{"storage", time.Second, func(c context.Context) error { return a.store.Close() }},
		{"supervisor", 2 * time.Second, a.sup.Wait},
	}
	for _, st := range steps {
		a.runStep(ctx, st)
	}

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

// runStep runs one shutdown step under its budget, clamped to the
// caller's deadline by the derived context. A step that overruns is
// abandoned to finish in the background and logged when it does, which
// is the only leak signal we get.
func (a *App) runStep(ctx context.Context, st stopStep) {
	begin := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, st.budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%s stop panicked: %v", st.name, r)
			}
		}()
		done <- st.fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(begin)
		switch {
		case err != nil:
			a.log.Warn("stop step failed", logx.String("step", st.name), logx.Duration("took", took), logx.Err(err))
		case took >= 500*time.Millisecond:
			a.log.Info("stop step done", logx.String("step", st.name), logx.Duration("took", took))
		default:
			a.log.Debug("stop step done", logx.String("step", st.name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step over budget; moving on",
			logx.String("step", st.name), logx.Duration("budget", st.budget))
		go func() {
			err := <-done
			took := time.Since(begin)
			if err != nil {
				a.log.Warn("late stop step failed", logx.String("step", st.name), logx.Duration("took", took), logx.Err(err))
				return
			}
			a.log.Info("late stop step finished", logx.String("step", st.name), logx.Duration("took", took))
		}()
	}
}
