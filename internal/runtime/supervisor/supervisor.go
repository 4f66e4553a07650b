// Package supervisor runs named goroutines under one shared context.
// Every goroutine launched through it is panic-isolated and accounted
// per name, so status output can show what is running and what died.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"cronshift/pkg/logx"
)

// Supervisor owns the context shared by its goroutines. The first
// failure (error return or panic) is retained for Err; with
// cancel-on-error set it also tears the whole group down.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	wg       sync.WaitGroup
	idleOnce sync.Once
	idle     chan struct{}

	errMu    sync.Mutex
	firstErr error

	track tracker
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the shared context as soon as any goroutine
// returns a non-nil error or panics.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{idle: make(chan struct{})}
	s.ctx, s.cancel = context.WithCancel(parent)
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel tears down the shared context without waiting for exits.
func (s *Supervisor) Cancel() { s.cancel() }

// Err reports the first failure observed so far, nil before any.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.firstErr
}

// Go launches fn as a named goroutine bound to the supervisor context.
// A panic inside fn is recovered and treated as a failure of fn.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.track.spawn()
	s.wg.Add(1)
	go s.run(name, fn)
}

func (s *Supervisor) run(name string, fn func(ctx context.Context) error) {
	defer s.wg.Done()
	defer s.track.exit()

	begun := s.track.begin(name, false)
	if !s.log.IsZero() {
		s.log.Debug("goroutine started", logx.String("name", name))
	}

	err, pv, stack := capture(func() error { return fn(s.ctx) })
	if pv != nil {
		s.track.panicked(name, pv)
		if !s.log.IsZero() {
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", pv), logx.String("stack", string(stack)))
		}
		err = fmt.Errorf("panic in %s: %v", name, pv)
	}

	switch {
	case err == nil || errors.Is(err, context.Canceled):
		s.track.end(name, begun, nil)
	default:
		if pv == nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
		s.track.end(name, begun, err)
		s.fail(err)
	}

	if !s.log.IsZero() {
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}
}

// RestartOption adjusts how GoRestart treats failures.
type RestartOption func(*restartPlan)

type restartPlan struct {
	floor   time.Duration
	ceil    time.Duration
	publish bool
}

// WithPublishFirstError records a restart-loop failure as the
// supervisor error, so it shows up in status output while the loop
// keeps self-healing. It never cancels the group.
func WithPublishFirstError(enabled bool) RestartOption {
	return func(p *restartPlan) { p.publish = enabled }
}

// GoRestart runs fn and relaunches it after every error or panic,
// backing off exponentially, until the context ends. Returning nil
// stops the loop for good. Meant for watchers, consumers and pollers
// where one bad iteration must not take the process down.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	plan := restartPlan{floor: 250 * time.Millisecond, ceil: 30 * time.Second}
	for _, o := range opts {
		o(&plan)
	}

	// The loop is one supervised goroutine under a derived name; the
	// logical task keeps its own stats row under the bare name.
	s.Go(name+".restart", func(ctx context.Context) error {
		delay := plan.floor
		for attempt := 0; ctx.Err() == nil; attempt++ {
			begun := s.track.begin(name, attempt > 0)

			err, pv, stack := capture(func() error { return fn(ctx) })
			if pv != nil {
				s.track.panicked(name, pv)
				if !s.log.IsZero() {
					s.log.Error("goroutine panicked (restart)", logx.String("name", name), logx.Any("panic", pv), logx.String("stack", string(stack)))
				}
				err = fmt.Errorf("panic: %v", pv)
			}

			// A shutdown-time return reads as a clean exit no matter
			// what fn surfaced; a voluntary nil return ends the loop.
			if ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				s.track.end(name, begun, nil)
				return nil
			}

			wrapped := fmt.Errorf("%s: %w", name, err)
			s.track.end(name, begun, wrapped)
			if plan.publish {
				s.remember(wrapped)
			}

			// Runs that lasted a while earn a fresh backoff window.
			if time.Since(begun) >= 30*time.Second {
				delay = plan.floor
			}
			if delay > plan.ceil {
				delay = plan.ceil
			}
			wait := delay + rand.N(delay/5+1)
			if !s.log.IsZero() {
				s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			delay *= 2
		}
		return nil
	})
}

// Wait blocks until every goroutine has exited or ctx expires, and
// returns the first failure if there was one.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.idleOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.idle)
		}()
	})

	select {
	case <-s.idle:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) remember(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.errMu.Unlock()
}

func (s *Supervisor) fail(err error) {
	s.remember(err)
	if s.cancelOnErr {
		s.cancel()
	}
}

// capture runs fn and converts a panic into its value plus stack.
func capture(fn func() error) (err error, pv any, stack []byte) {
	defer func() {
		if r := recover(); r != nil {
			pv = r
			stack = debug.Stack()
		}
	}()
	return fn(), nil, nil
}
