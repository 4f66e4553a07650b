package cronx

import (
	"slices"
	"strconv"
	"strings"
)

// stepInterval extracts the step from fields like "*/5" or "0-30/10".
// ok is false when the field has no '/' or the value after it is not a
// positive integer.
func stepInterval(field string) (n int, ok bool) {
	_, after, found := strings.Cut(field, "/")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(after))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// parseField expands a single cron field into an ascending, deduplicated
// list of integers. Comma lists and a-b ranges are expanded, wildcards
// produce no values, step segments are stepInterval's job and are
// skipped here, and segments that fail to parse are dropped silently.
func parseField(field string) []int {
	field = strings.TrimSpace(field)
	if field == "" || field == "*" {
		return nil
	}

	seen := make(map[int]bool)
	var out []int
	add := func(v int) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	for _, seg := range strings.Split(field, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" || strings.Contains(seg, "/") {
			continue
		}
		if lo, hi, isRange := strings.Cut(seg, "-"); isRange {
			a, errA := strconv.Atoi(strings.TrimSpace(lo))
			b, errB := strconv.Atoi(strings.TrimSpace(hi))
			if errA != nil || errB != nil {
				continue
			}
			// The widest legitimate field spans 0-59; refuse to expand
			// anything wider instead of burning memory on it.
			if b-a > 59 {
				continue
			}
			for v := a; v <= b; v++ {
				add(v)
			}
			continue
		}
		v, err := strconv.Atoi(seg)
		if err != nil {
			continue
		}
		add(v)
	}

	slices.Sort(out)
	return out
}

// firstOr returns the first parsed value, or def when the field was a
// wildcard or yielded nothing usable.
func firstOr(vals []int, def int) int {
	if len(vals) == 0 {
		return def
	}
	return vals[0]
}

// normalizeSet returns vals sorted ascending with duplicates removed,
// never mutating the input. Day sets are kept in this form everywhere.
func normalizeSet(vals []int) []int {
	sorted := append([]int{}, vals...)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}
