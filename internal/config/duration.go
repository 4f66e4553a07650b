package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField decodes a Go duration string from the config.
// Empty means zero. path names the offending field in errors, e.g.
// "dispatch.retry_base".
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", path, d)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def when the field is omitted or
// zero; parse errors still fail.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	switch d, err := ParseDurationField(path, raw); {
	case err != nil:
		return 0, err
	case d > 0:
		return d, nil
	default:
		return def, nil
	}
}
