// Package pprof serves the runtime profiling endpoints on their own
// listener, so profiling exposure is configured apart from the API.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"
	"sync"
	"time"

	"cronshift/pkg/logx"
)

// Config is the profiling server's runtime configuration. The server
// refuses to bind beyond loopback unless a token is set or
// AllowInsecure says so explicitly.
type Config struct {
	Enabled       bool
	Addr          string // host:port, default 127.0.0.1:6060
	Prefix        string // handler mount point, default /debug/pprof/
	Token         string // bearer token; also accepted as ?token=
	AllowInsecure bool

	// WriteTimeout should usually stay zero: /profile holds its
	// response open for the whole sample window.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Sampling rates handed to the runtime. Zero keeps Go's defaults.
	MutexProfileFraction int
	BlockProfileRate     int
	MemProfileRate       int
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	srv *http.Server
	ln  net.Listener
	// draining is non-nil while a shutdown is still flushing; Start
	// waits on it instead of double-binding the address.
	draining chan struct{}
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, cfg: cfg}
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

// Start binds the listener and serves in the background. It returns
// without serving when the service is disabled, the bind is refused as
// insecure, or the listen itself fails.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		s.mu.Lock()
		running := s.srv != nil
		drain := s.draining
		cfg := s.cfg
		s.mu.Unlock()

		switch {
		case running:
			return
		case drain != nil:
			select {
			case <-drain:
				continue
			case <-ctx.Done():
				return
			}
		}
		s.launch(cfg)
		return
	}
}

func (s *Service) launch(cfg Config) {
	if !cfg.Enabled {
		return
	}

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:6060"
	}

	// Profiling data leaks internals; an open bind needs either a token
	// or an explicit opt-in.
	if !loopbackOnly(addr) && cfg.Token == "" {
		if !cfg.AllowInsecure {
			s.log.Error("pprof refused to start: non-loopback addr requires token or allow_insecure",
				logx.String("addr", addr))
			return
		}
		s.log.Warn("pprof running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("pprof listen failed", logx.String("addr", addr), logx.Err(err))
		return
	}

	prefix := normalizePrefix(cfg.Prefix)
	srv := &http.Server{
		Handler:      buildMux(cfg, prefix),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	s.mu.Lock()
	if s.srv != nil {
		// Lost a Start race; the other instance serves.
		s.mu.Unlock()
		_ = ln.Close()
		return
	}
	s.srv, s.ln = srv, ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("pprof server stopped with error", logx.Err(err))
		}
	}()

	s.log.Info("pprof started",
		logx.String("addr", ln.Addr().String()),
		logx.String("prefix", prefix),
		logx.Bool("token_set", cfg.Token != ""),
		logx.String("hint", fmt.Sprintf("http://%s%s", ln.Addr().String(), prefix)))
}

// Stop shuts the server down, waiting at most until ctx is done; the
// drain keeps flushing in the background when ctx expires first.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	s.mu.Lock()
	srv, ln := s.srv, s.ln
	if srv == nil {
		drain := s.draining
		s.mu.Unlock()
		if drain != nil {
			select {
			case <-drain:
			case <-ctx.Done():
			}
		}
		return
	}
	drain := make(chan struct{})
	s.srv, s.ln, s.draining = nil, nil, drain
	s.mu.Unlock()

	// Close the listener first so a wedged Shutdown cannot keep the
	// port occupied.
	_ = ln.Close()

	go func() {
		defer close(drain)
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
		s.mu.Lock()
		s.draining = nil
		s.mu.Unlock()
		s.log.Info("pprof stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-drain:
	case <-ctx.Done():
	}
}

// Reconfigure applies cfg, starting, stopping or restarting the server
// as the change requires. Safe to call during hot-reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	// Runtime profiling rates apply even with the server disabled.
	profileRates(cfg)

	s.mu.Lock()
	was := s.cfg
	s.cfg = cfg
	running := s.srv != nil
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case needsRestart(was, cfg):
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.Token != b.Token ||
		a.AllowInsecure != b.AllowInsecure ||
		normalizePrefix(a.Prefix) != normalizePrefix(b.Prefix) ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout ||
		a.IdleTimeout != b.IdleTimeout
}

// profileRates applies the configured sampling rates. Zero leaves the
// runtime defaults in place; negative rates are ignored.
func profileRates(cfg Config) {
	if f := cfg.MutexProfileFraction; f >= 0 {
		runtime.SetMutexProfileFraction(f)
	}
	if r := cfg.BlockProfileRate; r >= 0 {
		runtime.SetBlockProfileRate(r)
	}
	if r := cfg.MemProfileRate; r > 0 {
		runtime.MemProfileRate = r
	}
}

func buildMux(cfg Config, prefix string) *http.ServeMux {
	root := strings.TrimSuffix(prefix, "/")
	auth := authWrapper(cfg.Token)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", auth(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc(prefix, auth(indexAt(prefix)))
	mux.HandleFunc(root+"/cmdline", auth(hpprof.Cmdline))
	mux.HandleFunc(root+"/profile", auth(hpprof.Profile))
	mux.HandleFunc(root+"/symbol", auth(hpprof.Symbol))
	mux.HandleFunc(root+"/trace", auth(hpprof.Trace))
	// The bare prefix (no trailing slash) redirects to the index.
	mux.HandleFunc(root, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, prefix, http.StatusPermanentRedirect)
	})
	return mux
}

// authWrapper returns the token middleware, or a pass-through when no
// token is configured. Both "Authorization: Bearer <tok>" and
// "?token=<tok>" are accepted; the query form exists because pprof's
// web UI cannot send headers.
func authWrapper(token string) func(http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return func(h http.HandlerFunc) http.HandlerFunc { return h }
	}
	return func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !tokenOK(r, tok) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
}

func tokenOK(r *http.Request, tok string) bool {
	if q := r.URL.Query().Get("token"); q != "" {
		return q == tok
	}
	bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && strings.TrimSpace(bearer) == tok
}

// normalizePrefix canonicalizes a mount point to "/name/" form. Empty
// and bare-slash prefixes fall back to the standard location.
func normalizePrefix(prefix string) string {
	p := strings.Trim(strings.TrimSpace(prefix), "/")
	if p == "" {
		return "/debug/pprof/"
	}
	return "/" + p + "/"
}

// indexAt rewrites request paths so hpprof.Index, which assumes it is
// rooted at /debug/pprof/, works under any prefix.
func indexAt(prefix string) http.HandlerFunc {
	canon := normalizePrefix(prefix)
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, canon)
		hpprof.Index(w, r2)
	}
}

// loopbackOnly reports whether addr is reachable from this host alone.
// An empty host binds every interface, so it does not count.
func loopbackOnly(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || strings.TrimSpace(host) == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
