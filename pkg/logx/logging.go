package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Logger emits structured events. Loggers handed out by a Service stay
// live across Apply calls; With derives a logger carrying extra fixed
// fields. The zero value drops everything.
type Logger struct {
	src    *Service
	static *zerolog.Logger
	fields []Field
}

// Nop returns a logger that is wired up but writes nothing. Unlike the
// zero value it does not read as unset to IsZero.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{static: &zl}
}

func (l Logger) IsZero() bool {
	return l.src == nil && l.static == nil && len(l.fields) == 0
}

// With returns a logger that adds fields to every event it emits.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = slices.Concat(l.fields, fields)
	return cp
}

func (l Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields) }

func (l Logger) root() zerolog.Logger {
	switch {
	case l.src != nil:
		return l.src.current()
	case l.static != nil:
		return *l.static
	default:
		return zerolog.Nop()
	}
}

func (l Logger) log(lv zerolog.Level, msg string, fields []Field) {
	root := l.root()
	e := root.WithLevel(lv)
	if e == nil {
		return
	}
	if site := callsite(3); site != "" {
		e.Str(zerolog.CallerFieldName, site)
	}
	for _, f := range l.fields {
		if f.apply != nil {
			f.apply(e)
		}
	}
	for _, f := range fields {
		if f.apply != nil {
			f.apply(e)
		}
	}
	e.Msg(msg)
}

// callsite reports file:line of the logging call, without the noisy
// full path or function name.
func callsite(skip int) string {
	if _, file, line, ok := runtime.Caller(skip); ok && file != "" {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return ""
}

// Service owns the swappable root logger and the log file handle.
type Service struct {
	mu   sync.Mutex
	root atomic.Pointer[zerolog.Logger]
	file *os.File
}

// New builds the service, applies cfg, and returns a live root Logger.
func New(cfg Config) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat

	s := &Service{}
	s.Apply(cfg)
	return s, Logger{src: s}
}

// Logger returns a live root logger bound to this service.
func (s *Service) Logger() Logger { return Logger{src: s} }

// Apply rebuilds the root logger from cfg and swaps it in. Loggers
// already handed out pick up the new level and sinks on their next
// event. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Replacing the sinks orphans the current file handle.
	if old := s.file; old != nil {
		s.file = nil
		_ = old.Close()
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, console())
	}
	if cfg.File.Enabled {
		f, err := openLogFile(cfg.File.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open log file: %v\n", err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	// Never end up mute: a config with no sinks still logs to console.
	if len(sinks) == 0 {
		sinks = append(sinks, console())
	}

	root := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(level(cfg.Level)).
		With().Timestamp().Logger()
	s.root.Store(&root)
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()

	if f != nil {
		_ = f.Close()
	}
	return nil
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "./cronshiftd.log"
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func console() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat}
}

// level maps a config string onto a zerolog level, defaulting to info
// on anything it does not recognize.
func level(raw string) zerolog.Level {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "warning" {
		s = "warn"
	}
	lv, err := zerolog.ParseLevel(s)
	if err != nil || lv == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lv
}
