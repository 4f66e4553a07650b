package cronx

import (
	"fmt"
	"strconv"
	"strings"
)

// Build renders the canonical cron expression for p. It is total and
// does not validate: out-of-range values are printed as-is, and an
// unknown frequency falls back to the daily-midnight expression. Use
// Parts.Schedule first when the input is untrusted.
func Build(p Parts) string {
	switch p.Frequency {
	case FreqMinute:
		return fmt.Sprintf("*/%d * * * *", p.Interval)
	case FreqHour:
		return fmt.Sprintf("%d */%d * * *", p.Minute, p.Interval)
	case FreqDay:
		return fmt.Sprintf("%d %d * * *", p.Minute, p.Hour)
	case FreqWeek:
		return fmt.Sprintf("%d %d * * %s", p.Minute, p.Hour, dowField(p.DaysOfWeek))
	case FreqMonth:
		return fmt.Sprintf("%d %d %d * *", p.Minute, p.Hour, p.DayOfMonth)
	default:
		return "0 0 * * *"
	}
}

// dowField renders a weekday set as a sorted, deduplicated comma list.
// The empty set means "any day" and renders as the wildcard, so a weekly
// schedule with no days selected behaves exactly like a daily one.
func dowField(days []int) string {
	if len(days) == 0 {
		return "*"
	}
	elems := make([]string, 0, len(days))
	for _, d := range normalizeSet(days) {
		elems = append(elems, strconv.Itoa(d))
	}
	return strings.Join(elems, ",")
}
