package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	"cronshift/pkg/logx"
)

// settleDelay is how long Watch lets file events quiesce before
// reloading, so editors that write in several steps reload once.
const settleDelay = 250 * time.Millisecond

// reloadOps are the fsnotify events that can change file content.
// Rename/Remove/Chmod are included because editors often save by
// replacing the file.
const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

// Manager loads the config file, hands out the committed snapshot, and
// fans out reloads to subscribers while Watch runs.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config
	// lastDigest is the content hash of the committed config; saves
	// that do not change content publish nothing.
	lastDigest uint64

	// subsMu guards the subscriber list so publish never sends on a
	// channel that Unsubscribe is concurrently closing.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs the hook Watch runs before committing and
// publishing a reloaded config.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and strictly decodes the config file without committing
// it. Unknown fields and trailing documents are errors in both formats.
func (m *Manager) Parse() (*Config, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(m.path)); ext {
	case ".yaml", ".yml":
		return parseYAML(raw)
	default:
		return parseJSON(raw)
	}
}

func parseJSON(raw []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	switch err := dec.Decode(&struct{}{}); err {
	case io.EOF:
	case nil:
		return nil, fmt.Errorf("invalid config: trailing data")
	default:
		return nil, err
	}
	return &cfg, nil
}

func parseYAML(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid yaml config: %w", err)
	}
	// A second document in the same file is a mistake, not a feature.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("invalid config: trailing yaml document")
	}
	return &cfg, nil
}

// Load is Parse plus Commit.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastDigest = hashConfig(cfg)
	m.mu.Unlock()
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch != nil && !offer(ch, cfg) && !m.log.IsZero() {
			m.log.Debug("config update dropped (subscriber slow)",
				logx.Int("queue_len", len(ch)),
				logx.Int("queue_cap", cap(ch)))
		}
	}
}

// offer delivers cfg without blocking. A full buffer loses its oldest
// entry first: subscribers want the latest config, not every config.
func offer(ch chan *Config, cfg *Config) bool {
	select {
	case ch <- cfg:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cfg:
		return true
	default:
		return false
	}
}

// Watch follows the config file until ctx ends, reloading after each
// settled change. The fsnotify watcher is recreated with backoff when
// it breaks, which some platforms and editors make routine.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	base := filepath.Base(m.path)
	retry := backoff{floor: 250 * time.Millisecond, ceil: 5 * time.Second}

	var deb debouncer
	refire := func() {
		if !m.log.IsZero() {
			m.log.Debug("config change detected; scheduling reload", logx.String("path", m.path))
		}
		deb.trigger(settleDelay, func() { m.reload(ctx) })
	}

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config watch setup failed", logx.Err(err), logx.String("dir", dir))
			}
			if !sleep(ctx, retry.next()) {
				return nil
			}
			continue
		}

		retry.reset()
		if !m.log.IsZero() {
			m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", base))
		}

		m.consume(ctx, w, base, refire)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}

		wait := retry.next()
		if !m.log.IsZero() {
			m.log.Warn("config watcher stopped; restarting",
				logx.String("dir", dir), logx.Duration("backoff", wait))
		}
		if !sleep(ctx, wait) {
			return nil
		}
	}
	return nil
}

// consume drains one watcher until it breaks or ctx ends.
func (m *Manager) consume(ctx context.Context, w *fsnotify.Watcher, base string, refire func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			// Compare basenames: event paths may be absolute while the
			// configured path is relative.
			if strings.EqualFold(filepath.Base(ev.Name), base) && ev.Op&reloadOps != 0 {
				refire()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			switch {
			case err == nil:
			case mentions(err, "overflow"):
				// Events were lost; reload once instead of guessing
				// what changed.
				if !m.log.IsZero() {
					m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				}
				refire()
			case mentions(err, "closed"):
				if !m.log.IsZero() {
					m.log.Warn("config watch error", logx.Err(err), logx.String("dir", filepath.Dir(m.path)))
				}
				return
			default:
				if !m.log.IsZero() {
					m.log.Warn("config watch error", logx.Err(err), logx.String("dir", filepath.Dir(m.path)))
				}
			}
		}
	}
}

// reload parses, validates, commits and publishes the file. Saves that
// leave the content unchanged stop at the digest check.
func (m *Manager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		if !m.log.IsZero() {
			m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		}
		return
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastDigest
	m.mu.RUnlock()
	if unchanged {
		if !m.log.IsZero() {
			m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		}
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			if !m.log.IsZero() {
				m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			}
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	if !m.log.IsZero() {
		m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
	}
}

// hashConfig digests the canonical JSON form; 0 means "no digest" and
// never matches.
func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// debouncer collapses bursts of trigger calls into the last one.
type debouncer struct {
	mu sync.Mutex
	t  *time.Timer
}

func (d *debouncer) trigger(after time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.t != nil {
		d.t.Stop()
	}
	d.t = time.AfterFunc(after, fn)
}

// backoff yields jittered, exponentially growing delays.
type backoff struct {
	floor, ceil time.Duration
	cur         time.Duration
}

func (b *backoff) next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.floor
	}
	wait := b.cur + rand.N(b.cur/2+1)
	b.cur *= 2
	if b.cur > b.ceil {
		b.cur = b.ceil
	}
	return wait
}

func (b *backoff) reset() { b.cur = b.floor }

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func mentions(err error, substr string) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), substr)
}
