package cronx

import (
	"fmt"
	"time"
)

// Schedule is the validated, shape-specific form of a recurrence. Where
// Parts carries every field all the time, a Schedule value can only
// express fields that belong to its shape and only in range, so code
// consuming one never re-checks invariants. The five implementations
// are MinuteInterval, HourInterval, Daily, Weekly and Monthly.
type Schedule interface {
	// Cron renders the canonical cron expression for the shape.
	Cron() string
	// Parts converts back to the flat editor representation.
	Parts() Parts

	sealed()
}

// MinuteInterval fires every Interval minutes, on minutes divisible by
// the interval.
type MinuteInterval struct {
	Interval int
}

// HourInterval fires at the given minute of every Interval-th hour.
type HourInterval struct {
	Interval int
	Minute   int
}

// Daily fires once a day at Hour:Minute.
type Daily struct {
	Hour   int
	Minute int
}

// Weekly fires at Hour:Minute on the listed weekdays. An empty list
// means every day, which renders identically to Daily.
type Weekly struct {
	Hour   int
	Minute int
	Days   []time.Weekday
}

// Monthly fires at Hour:Minute on the Day-th of each month. Months
// shorter than Day skip that cycle; that is cron's own behavior, not a
// quirk of this package.
type Monthly struct {
	Hour   int
	Minute int
	Day    int
}

func (MinuteInterval) sealed() {}
func (HourInterval) sealed()   {}
func (Daily) sealed()          {}
func (Weekly) sealed()         {}
func (Monthly) sealed()        {}

func (s MinuteInterval) Cron() string { return fmt.Sprintf("*/%d * * * *", s.Interval) }
func (s HourInterval) Cron() string   { return fmt.Sprintf("%d */%d * * *", s.Minute, s.Interval) }
func (s Daily) Cron() string          { return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour) }
func (s Weekly) Cron() string {
	return fmt.Sprintf("%d %d * * %s", s.Minute, s.Hour, dowField(weekdayInts(s.Days)))
}
func (s Monthly) Cron() string { return fmt.Sprintf("%d %d %d * *", s.Minute, s.Hour, s.Day) }

func (s MinuteInterval) Parts() Parts {
	p := DefaultParts()
	p.Frequency = FreqMinute
	p.Interval = s.Interval
	return p
}

func (s HourInterval) Parts() Parts {
	p := DefaultParts()
	p.Frequency = FreqHour
	p.Interval = s.Interval
	p.Minute = s.Minute
	return p
}

func (s Daily) Parts() Parts {
	p := DefaultParts()
	p.Hour = s.Hour
	p.Minute = s.Minute
	return p
}

func (s Weekly) Parts() Parts {
	p := DefaultParts()
	p.Frequency = FreqWeek
	p.Hour = s.Hour
	p.Minute = s.Minute
	p.DaysOfWeek = weekdayInts(s.Days)
	return p
}

func (s Monthly) Parts() Parts {
	p := DefaultParts()
	p.Frequency = FreqMonth
	p.Hour = s.Hour
	p.Minute = s.Minute
	p.DayOfMonth = s.Day
	return p
}

// Schedule validates p and returns the shape-specific form, or an error
// naming the first field that is out of range for p's frequency. Fields
// that do not belong to the frequency are ignored, matching how Build
// ignores them.
func (p Parts) Schedule() (Schedule, error) {
	switch p.Frequency {
	case FreqMinute:
		if p.Interval < 1 {
			return nil, fmt.Errorf("minute schedule: interval must be at least 1, got %d", p.Interval)
		}
		return MinuteInterval{Interval: p.Interval}, nil
	case FreqHour:
		if p.Interval < 1 {
			return nil, fmt.Errorf("hour schedule: interval must be at least 1, got %d", p.Interval)
		}
		if err := checkMinute(p.Minute); err != nil {
			return nil, fmt.Errorf("hour schedule: %w", err)
		}
		return HourInterval{Interval: p.Interval, Minute: p.Minute}, nil
	case FreqDay:
		if err := checkClock(p.Hour, p.Minute); err != nil {
			return nil, fmt.Errorf("daily schedule: %w", err)
		}
		return Daily{Hour: p.Hour, Minute: p.Minute}, nil
	case FreqWeek:
		if err := checkClock(p.Hour, p.Minute); err != nil {
			return nil, fmt.Errorf("weekly schedule: %w", err)
		}
		days, err := weekdaysOf(p.DaysOfWeek)
		if err != nil {
			return nil, fmt.Errorf("weekly schedule: %w", err)
		}
		return Weekly{Hour: p.Hour, Minute: p.Minute, Days: days}, nil
	case FreqMonth:
		if err := checkClock(p.Hour, p.Minute); err != nil {
			return nil, fmt.Errorf("monthly schedule: %w", err)
		}
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return nil, fmt.Errorf("monthly schedule: day of month must be in 1..31, got %d", p.DayOfMonth)
		}
		return Monthly{Hour: p.Hour, Minute: p.Minute, Day: p.DayOfMonth}, nil
	default:
		return nil, fmt.Errorf("unknown frequency %q", p.Frequency)
	}
}

func checkMinute(minute int) error {
	if minute < 0 || minute > 59 {
		return fmt.Errorf("minute must be in 0..59, got %d", minute)
	}
	return nil
}

func checkClock(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("hour must be in 0..23, got %d", hour)
	}
	return checkMinute(minute)
}

// weekdaysOf converts and validates a 0=Sunday int set, sorted and
// deduplicated.
func weekdaysOf(days []int) ([]time.Weekday, error) {
	if len(days) == 0 {
		return nil, nil
	}
	out := make([]time.Weekday, 0, len(days))
	for _, d := range normalizeSet(days) {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("day of week must be in 0..6, got %d", d)
		}
		out = append(out, time.Weekday(d))
	}
	return out, nil
}

func weekdayInts(days []time.Weekday) []int {
	if len(days) == 0 {
		return []int{}
	}
	out := make([]int, 0, len(days))
	for _, d := range days {
		out = append(out, int(d))
	}
	return out
}
