package config

import (
	"slices"
	"strings"

	"cronshift/pkg/logx"
)

// flatConfig is a Config prepared for comparison: optional sections are
// resolved to their effective values, compared strings are trimmed, and
// secrets are reduced to set/unset so they can never leak into a diff.
type flatConfig struct {
	logging LoggingConfig
	api     APIConfig
	sched   SchedulerConfig
	disp    DispatchConfig
	stor    StorageConfig
	prof    PprofConfig
}

func flatten(cfg *Config) flatConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	f := flatConfig{
		logging: cfg.Logging,
		api:     cfg.API,
		sched:   cfg.Scheduler,
		disp:    DefaultDispatch(), // omitting the section means runtime defaults
		prof:    cfg.Pprof,
	}
	if cfg.Dispatch != nil {
		f.disp = *cfg.Dispatch
	}
	if cfg.Storage != nil {
		f.stor = *cfg.Storage // nil keeps the zero value, which reads as disabled
	}

	for _, p := range []*string{
		&f.logging.Level, &f.logging.File.Path,
		&f.api.Addr, &f.api.ReadTimeout, &f.api.WriteTimeout, &f.api.IdleTimeout,
		&f.sched.RunTimeout, &f.sched.RetryBase,
		&f.disp.RequestTimeout, &f.disp.RetryBase, &f.disp.RetryMaxDelay, &f.disp.DedupWindow,
		&f.stor.Driver, &f.stor.BusyTimeout,
		&f.prof.Addr, &f.prof.Prefix, &f.prof.ReadTimeout, &f.prof.WriteTimeout, &f.prof.IdleTimeout,
	} {
		*p = strings.TrimSpace(*p)
	}

	f.api.Token = presence(f.api.Token)
	f.prof.Token = presence(f.prof.Token)
	// Only whether a storage path is configured matters to the diff, not
	// its value.
	f.stor.Path = presence(f.stor.Path)
	return f
}

// presence collapses a value to set or unset.
func presence(v string) string {
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return "set"
}

// SummarizeChange reports which config sections differ between two
// snapshots, plus structured attrs describing the new values. Tokens
// surface as set/unset booleans only.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	prev, next := flatten(oldCfg), flatten(newCfg)

	var changed []string
	var attrs []logx.Field
	section := func(name string, same bool, fields ...logx.Field) {
		if same {
			return
		}
		changed = append(changed, name)
		attrs = append(attrs, fields...)
	}

	section("logging", prev.logging == next.logging,
		logx.String("logx.level", next.logging.Level),
		logx.Bool("logx.console", next.logging.Console),
		logx.Bool("logx.file_enabled", next.logging.File.Enabled),
	)
	section("api", prev.api == next.api,
		logx.Bool("api.enabled", next.api.Enabled),
		logx.String("api.addr", next.api.Addr),
		logx.Bool("api.token_set", next.api.Token != ""),
		logx.Bool("api.allow_insecure", next.api.AllowInsecure),
		logx.Int("api.rate_per_sec", next.api.RatePerSec),
	)
	section("scheduler", prev.sched == next.sched,
		logx.Bool("scheduler.enabled", next.sched.Enabled),
		logx.Int("scheduler.workers", next.sched.Workers),
		logx.Int("scheduler.queue_size", next.sched.QueueSize),
		logx.String("scheduler.run_timeout", next.sched.RunTimeout),
		logx.Int("scheduler.retry_max", next.sched.RetryMax),
	)
	section("dispatch", prev.disp == next.disp,
		logx.Bool("dispatch.enabled", next.disp.Enabled),
		logx.Int("dispatch.workers", next.disp.Workers),
		logx.Int("dispatch.queue_size", next.disp.QueueSize),
		logx.Int("dispatch.rate_per_sec", next.disp.RatePerSec),
		logx.Int("dispatch.retry_max", next.disp.RetryMax),
		logx.Bool("dispatch.persist_dedup", next.disp.PersistDedup),
	)
	section("storage", prev.stor == next.stor,
		logx.String("storage.driver", next.stor.Driver),
		logx.Bool("storage.path_set", next.stor.Path != ""),
		logx.String("storage.busy_timeout", next.stor.BusyTimeout),
	)
	section("pprof", prev.prof == next.prof,
		logx.Bool("pprof.enabled", next.prof.Enabled),
		logx.String("pprof.addr", next.prof.Addr),
		logx.String("pprof.prefix", next.prof.Prefix),
		logx.Bool("pprof.token_set", next.prof.Token != ""),
		logx.Bool("pprof.allow_insecure", next.prof.AllowInsecure),
	)

	slices.Sort(changed)
	return changed, attrs
}

// DefaultDispatch is the effective dispatch config when the section is
// omitted. The dispatcher itself applies the same values through
// withDefaults; keep the two in sync.
func DefaultDispatch() DispatchConfig {
	return DispatchConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      5,
		RequestTimeout:  "10s",
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2048,
		HistorySize:     200,
	}
}
