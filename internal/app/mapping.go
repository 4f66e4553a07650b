package app

import (
	"fmt"
	"strings"
	"time"

	"cronshift/internal/config"
	"cronshift/internal/services/api"
	"cronshift/internal/services/dispatch"
	"cronshift/internal/services/pprof"
	"cronshift/internal/services/scheduler"
	"cronshift/internal/storage"
)

// The map functions translate the JSON config (string durations,
// optional sections) into service configs. They double as the
// validation layer: every one of them is called by validateConfig
// before a reload is committed.

func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapAPIConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPprofConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	if sc.Workers < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.workers must be >= 0")
	}
	if sc.QueueSize < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.queue_size must be >= 0")
	}
	if sc.HistorySize < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.history_size must be >= 0")
	}
	if sc.RetryMax < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.retry_max must be >= 0")
	}
	runTimeout, err := config.ParseDurationField("scheduler.run_timeout", sc.RunTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	retryBase, err := config.ParseDurationField("scheduler.retry_base", sc.RetryBase)
	if err != nil {
		return scheduler.Config{}, err
	}

	// Omitted retry_max means 3; the service itself keeps 0 as "no
	// retries" for direct construction.
	retryMax := sc.RetryMax
	if retryMax == 0 {
		retryMax = 3
	}

	return scheduler.Config{
		Enabled:     sc.Enabled,
		Workers:     sc.Workers,
		QueueSize:   sc.QueueSize,
		RunTimeout:  runTimeout,
		HistorySize: sc.HistorySize,
		RetryMax:    retryMax,
		RetryBase:   retryBase,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	def := config.DefaultDispatch()
	dc := cfg.Dispatch
	if dc == nil {
		dc = &def
	}
	if dc.Workers < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.workers must be >= 0")
	}
	if dc.QueueSize < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.queue_size must be >= 0")
	}
	if dc.RatePerSec < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.rate_per_sec must be >= 0")
	}
	if dc.RetryMax < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.retry_max must be >= 0")
	}
	if dc.DedupMaxEntries < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.dedup_max_entries must be >= 0")
	}
	if dc.HistorySize < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.history_size must be >= 0")
	}

	requestTimeout, err := config.ParseDurationOrDefault("dispatch.request_timeout", dc.RequestTimeout, 10*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	retryBase, err := config.ParseDurationField("dispatch.retry_base", dc.RetryBase)
	if err != nil {
		return dispatch.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("dispatch.retry_max_delay", dc.RetryMaxDelay)
	if err != nil {
		return dispatch.Config{}, err
	}
	dedupWindow, err := config.ParseDurationOrDefault("dispatch.dedup_window", dc.DedupWindow, time.Minute)
	if err != nil {
		return dispatch.Config{}, err
	}

	retryMax := dc.RetryMax
	if retryMax == 0 {
		retryMax = 3
	}

	return dispatch.Config{
		Enabled:         dc.Enabled,
		Workers:         dc.Workers,
		QueueSize:       dc.QueueSize,
		RatePerSec:      dc.RatePerSec,
		RequestTimeout:  requestTimeout,
		RetryMax:        retryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: dc.DedupMaxEntries,
		PersistDedup:    dc.PersistDedup,
		HistorySize:     dc.HistorySize,
	}, nil
}

func mapAPIConfig(cfg *config.Config) (api.Config, error) {
	ac := cfg.API
	if ac.RatePerSec < 0 {
		return api.Config{}, fmt.Errorf("api.rate_per_sec must be >= 0")
	}
	if ac.Burst < 0 {
		return api.Config{}, fmt.Errorf("api.burst must be >= 0")
	}
	readTimeout, err := config.ParseDurationOrDefault("api.read_timeout", ac.ReadTimeout, 10*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	writeTimeout, err := config.ParseDurationOrDefault("api.write_timeout", ac.WriteTimeout, 30*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	idleTimeout, err := config.ParseDurationOrDefault("api.idle_timeout", ac.IdleTimeout, time.Minute)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		Enabled:       ac.Enabled,
		Addr:          strings.TrimSpace(ac.Addr),
		Token:         strings.TrimSpace(ac.Token),
		AllowInsecure: ac.AllowInsecure,
		RatePerSec:    ac.RatePerSec,
		Burst:         ac.Burst,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
		IdleTimeout:   idleTimeout,
	}, nil
}

func mapPprofConfig(cfg *config.Config) (pprof.Config, error) {
	pc := cfg.Pprof
	if pc.MutexProfileFraction < 0 {
		return pprof.Config{}, fmt.Errorf("pprof.mutex_profile_fraction must be >= 0")
	}
	if pc.BlockProfileRate < 0 {
		return pprof.Config{}, fmt.Errorf("pprof.block_profile_rate must be >= 0")
	}
	if pc.MemProfileRate < 0 {
		return pprof.Config{}, fmt.Errorf("pprof.mem_profile_rate must be >= 0")
	}
	readTimeout, err := config.ParseDurationOrDefault("pprof.read_timeout", pc.ReadTimeout, 5*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	// Zero write timeout stays zero: /profile can legitimately run 30s+.
	writeTimeout, err := config.ParseDurationField("pprof.write_timeout", pc.WriteTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	idleTimeout, err := config.ParseDurationOrDefault("pprof.idle_timeout", pc.IdleTimeout, time.Minute)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:              pc.Enabled,
		Addr:                 strings.TrimSpace(pc.Addr),
		Prefix:               strings.TrimSpace(pc.Prefix),
		Token:                strings.TrimSpace(pc.Token),
		AllowInsecure:        pc.AllowInsecure,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MutexProfileFraction: pc.MutexProfileFraction,
		BlockProfileRate:     pc.BlockProfileRate,
		MemProfileRate:       pc.MemProfileRate,
	}, nil
}

// mapStorageConfig returns the storage config and whether a persistent
// section was configured at all. Disabled storage is not an error; the
// app falls back to the in-memory store.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	case "memory":
		return storage.Config{Driver: "memory"}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
