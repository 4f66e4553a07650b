package cronx

import (
	"fmt"
	"time"
)

// Conversion is the result of shifting a schedule between wall-clock
// frames. Parts and Cron always describe the same schedule; Warning is
// non-empty when the shift forced an approximation (a day-of-month
// pushed past a month boundary has no exact form in this dialect).
type Conversion struct {
	Parts   Parts  `json:"parts"`
	Cron    string `json:"cron"`
	Warning string `json:"warning,omitempty"`
}

// ToUTC converts parts edited as wall-clock time in loc into the UTC
// schedule to store and run. The offset is resolved from loc at the
// reference instant on, so the caller decides which date's DST rules
// apply and conversions stay reproducible in tests. A zero on means
// "now"; a nil loc means UTC.
//
// Interval shapes (minute, hour) carry no absolute time-of-day and pass
// through unchanged.
func ToUTC(p Parts, loc *time.Location, on time.Time) Conversion {
	return shiftParts(p, -offsetMinutes(loc, on))
}

// FromUTC converts a stored UTC cron expression into the wall-clock
// parts to display in loc. Offset resolution and passthrough rules match
// ToUTC. The expression goes through ParseOrDefault, so unparseable
// input converts as the daily-midnight default.
func FromUTC(expr string, loc *time.Location, on time.Time) Conversion {
	return shiftParts(ParseOrDefault(expr), offsetMinutes(loc, on))
}

// offsetMinutes is loc's UTC offset at the given instant, in minutes
// east of UTC. Minute precision keeps zones like Asia/Kolkata
// (UTC+05:30) exact.
func offsetMinutes(loc *time.Location, on time.Time) int {
	if loc == nil {
		loc = time.UTC
	}
	if on.IsZero() {
		on = time.Now()
	}
	_, sec := on.In(loc).Zone()
	return sec / 60
}

// shiftParts moves the time-of-day of a daily, weekly or monthly
// schedule by delta minutes, wrapping across midnight. When the wrap
// crosses a date boundary the day selectors move with it: weekdays
// rotate mod 7, day-of-month shifts and clamps to 1..31 with a warning.
func shiftParts(p Parts, delta int) Conversion {
	switch p.Frequency {
	case FreqDay, FreqWeek, FreqMonth:
	default:
		return Conversion{Parts: p, Cron: Build(p)}
	}

	const minutesPerDay = 24 * 60
	total := p.Hour*60 + p.Minute + delta
	deltaDays := 0
	for total < 0 {
		total += minutesPerDay
		deltaDays--
	}
	for total >= minutesPerDay {
		total -= minutesPerDay
		deltaDays++
	}
	p.Hour = total / 60
	p.Minute = total % 60

	var warning string
	if deltaDays != 0 {
		switch p.Frequency {
		case FreqWeek:
			shifted := make([]int, 0, len(p.DaysOfWeek))
			for _, d := range p.DaysOfWeek {
				shifted = append(shifted, ((d+deltaDays)%7+7)%7)
			}
			// Rotation breaks ascending order (6 wraps to 0), so restore
			// the normalized form the rest of the package relies on.
			p.DaysOfWeek = normalizeSet(shifted)
		case FreqMonth:
			moved := p.DayOfMonth + deltaDays
			if moved < 1 || moved > 31 {
				clamped := 1
				if moved > 31 {
					clamped = 31
				}
				warning = fmt.Sprintf(
					"day of month %d left the 1..31 range after the timezone shift and was clamped to %d; runs near month boundaries may land a day off",
					moved, clamped)
				moved = clamped
			}
			p.DayOfMonth = moved
		}
	}

	return Conversion{Parts: p, Cron: Build(p), Warning: warning}
}
