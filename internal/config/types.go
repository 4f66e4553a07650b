package config

type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// API is the HTTP surface for editing schedules and translating
	// cron expressions.
	API APIConfig `json:"api" yaml:"api"`

	// Scheduler controls the trigger side: stored cron expressions are
	// evaluated in UTC and fires are handed to the dispatcher.
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`

	// Dispatch controls webhook delivery. If omitted, the dispatcher
	// runs with defaults (enabled, 2 workers).
	Dispatch *DispatchConfig `json:"dispatch,omitempty" yaml:"dispatch,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
	Pprof   PprofConfig    `json:"pprof,omitempty" yaml:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Console bool        `json:"console" yaml:"console"`
	File    LoggingFile `json:"file" yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// APIConfig controls the schedule/translation HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8400").
//   - If you bind to a non-loopback address, set a token or explicitly
//     allow_insecure.
type APIConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Addr          string `json:"addr,omitempty" yaml:"addr,omitempty"`   // default: "127.0.0.1:8400"
	Token         string `json:"token,omitempty" yaml:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty" yaml:"allow_insecure,omitempty"`

	// RatePerSec caps request throughput per server (not per client).
	// Burst defaults to 2x the rate. Zero keeps the defaults (20/s).
	RatePerSec int `json:"rate_per_sec,omitempty" yaml:"rate_per_sec,omitempty"`
	Burst      int `json:"burst,omitempty" yaml:"burst,omitempty"`

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`
}

// SchedulerConfig controls the trigger service.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - run_timeout: "30s"
//   - history_size: 200
//   - retry_max: 3, retry_base: "500ms"
type SchedulerConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Workers     int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	RunTimeout  string `json:"run_timeout,omitempty" yaml:"run_timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty" yaml:"history_size,omitempty"`
	RetryMax    int    `json:"retry_max,omitempty" yaml:"retry_max,omitempty"`
	RetryBase   string `json:"retry_base,omitempty" yaml:"retry_base,omitempty"`
}

// DispatchConfig controls the webhook delivery pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, dispatch defaults to enabled.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 512
//   - rate_per_sec: 5
//   - request_timeout: "10s"
//   - retry_max: 3, retry_base: "500ms", retry_max_delay: "10s"
//   - dedup_window: "1m", dedup_max_entries: 2048
//   - history_size: 200
type DispatchConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	Workers         int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty" yaml:"rate_per_sec,omitempty"`
	RequestTimeout  string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty" yaml:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty" yaml:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty" yaml:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty" yaml:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty" yaml:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty" yaml:"persist_dedup,omitempty"`
	HistorySize     int    `json:"history_size,omitempty" yaml:"history_size,omitempty"`
}

// StorageConfig controls the persistence layer for schedules and run
// history.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./cronshift_store" }
type StorageConfig struct {
	Driver      string `json:"driver" yaml:"driver"`
	Path        string `json:"path" yaml:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty" yaml:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Addr          string `json:"addr,omitempty" yaml:"addr,omitempty"`     // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty" yaml:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty" yaml:"token,omitempty"`   // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty" yaml:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty" yaml:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty" yaml:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty" yaml:"mem_profile_rate,omitempty"`
}
