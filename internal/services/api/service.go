package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	rtsup "cronshift/internal/runtime/supervisor"
	"cronshift/internal/services/dispatch"
	"cronshift/internal/services/scheduler"
	"cronshift/internal/storage"
	"cronshift/pkg/logx"
)

const defaultAddr = "127.0.0.1:8400"

// Config controls the HTTP API server.
//
// Binding beyond loopback requires a Token; AllowInsecure overrides
// that check for setups that terminate auth elsewhere.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	// RatePerSec caps request throughput across the server. Burst
	// defaults to twice the rate; zero rate means 20/s.
	RatePerSec int
	Burst      int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Deps are the collaborators the API reads from and writes to. Store
// may be nil (schedule endpoints answer 503); Scheduler and Dispatch
// may be nil (status sections are omitted, mutations skip the sync).
// Supervisor is the app-level supervisor for /v1/status counters.
type Deps struct {
	Store      storage.Store
	Scheduler  *scheduler.Service
	Dispatch   *dispatch.Service
	Supervisor *rtsup.Supervisor
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	deps Deps

	ln       net.Listener
	srv      *http.Server
	draining chan struct{} // non-nil while a stop is in flight

	startedAt time.Time
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, deps: deps, log: log, startedAt: time.Now()}
}

// SetSupervisor wires the app supervisor into /v1/status. The app
// creates its supervisor after the services, so this runs between New
// and Start.
func (s *Service) SetSupervisor(sup *rtsup.Supervisor) {
	s.mu.Lock()
	s.deps.Supervisor = sup
	s.mu.Unlock()
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr returns the bound listen address, or "" when stopped.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start is idempotent. A Start racing an in-flight Stop waits for the
// drain so the port is free before the new listen.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		s.mu.Lock()
		if s.srv != nil {
			s.mu.Unlock()
			return
		}
		drain := s.draining
		cfg := s.cfg
		s.mu.Unlock()

		if drain == nil {
			if cfg.Enabled {
				s.listen(cfg)
			}
			return
		}
		select {
		case <-drain:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) listen(cfg Config) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}

	switch err := checkExposure(addr, cfg); {
	case err != nil:
		s.log.Error("api refused to start", logx.String("addr", addr), logx.Err(err))
		return
	case cfg.Token == "" && !isLoopback(addr):
		s.log.Warn("api has no token on a non-loopback addr", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("api listen failed", logx.String("addr", addr), logx.Err(err))
		return
	}

	srv := &http.Server{
		Handler:      s.guard(cfg.Token, newLimiter(cfg), s.buildMux()),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	s.mu.Lock()
	if s.srv != nil {
		// Lost a race with another Start.
		s.mu.Unlock()
		_ = ln.Close()
		return
	}
	s.ln, s.srv = ln, srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server stopped with error", logx.Err(err))
		}
	}()

	s.log.Info("api started",
		logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))
}

// Stop shuts the server down, waiting for in-flight requests until ctx
// expires.
func (s *Service) Stop(ctx context.Context) {
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
		}
		return
	}
	if s.srv == nil {
		s.mu.Unlock()
		return
	}
	drain := make(chan struct{})
	srv, ln := s.srv, s.ln
	s.srv, s.ln, s.draining = nil, nil, drain
	s.mu.Unlock()

	// Closing the listener first frees the port even if Shutdown wedges
	// on a stuck connection.
	_ = ln.Close()

	go func() {
		defer close(drain)
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
		s.mu.Lock()
		s.draining = nil
		s.mu.Unlock()
		s.log.Info("api stopped")
	}()

	select {
	case <-drain:
	case <-ctx.Done():
	}
}

// Reconfigure applies cfg, restarting the server when a change cannot
// take effect in place. Safe to call during hot-reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
	case !running:
		s.Start(ctx)
	case needsRestart(prev, cfg):
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// needsRestart: everything here is baked in at listen time (addr and
// limiter) or into the http.Server (timeouts, auth middleware).
func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.Token != b.Token ||
		a.AllowInsecure != b.AllowInsecure ||
		a.RatePerSec != b.RatePerSec ||
		a.Burst != b.Burst ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout ||
		a.IdleTimeout != b.IdleTimeout
}

func newLimiter(cfg Config) *rate.Limiter {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 20
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 2 * perSec
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

// checkExposure refuses non-loopback binds that have no token, unless
// the config says insecure is fine.
func checkExposure(addr string, cfg Config) error {
	if cfg.Token != "" || cfg.AllowInsecure || isLoopback(addr) {
		return nil
	}
	return errors.New("non-loopback bind requires token or allow_insecure")
}

// guard applies the shared request policy: /healthz passes through,
// everything else is rate-limited and token-checked.
func (s *Service) guard(token string, limiter *rate.Limiter, next http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		if !limiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if tok != "" && !authOK(tok, r) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authOK accepts "Authorization: Bearer <token>" or ?token=<token>.
func authOK(token string, r *http.Request) bool {
	if got := r.URL.Query().Get("token"); got != "" {
		return got == token
	}
	rest, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && strings.TrimSpace(rest) == token
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	// An empty host binds every interface.
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
