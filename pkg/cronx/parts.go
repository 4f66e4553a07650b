package cronx

// Frequency tags the recurrence shape of a schedule.
type Frequency string

const (
	FreqMinute Frequency = "minute"
	FreqHour   Frequency = "hour"
	FreqDay    Frequency = "day"
	FreqWeek   Frequency = "week"
	FreqMonth  Frequency = "month"
)

// Parts is the flat, editor-friendly decomposition of a cron expression.
// Every field is always present so the struct binds directly to form and
// JSON payloads; only the fields that belong to the Frequency are
// meaningful, the rest stay at their defaults:
//
//	minute: Interval
//	hour:   Interval, Minute
//	day:    Hour, Minute
//	week:   Hour, Minute, DaysOfWeek
//	month:  Hour, Minute, DayOfMonth
//
// Parts does not enforce ranges. Call Schedule to obtain the validated,
// shape-specific form.
type Parts struct {
	Frequency  Frequency `json:"frequency"`
	Interval   int       `json:"interval"`
	Hour       int       `json:"hour"`
	Minute     int       `json:"minute"`
	DaysOfWeek []int     `json:"days_of_week"`
	DayOfMonth int       `json:"day_of_month"`
}

// DefaultParts returns the fallback schedule: daily at midnight. The
// parser degrades to it whenever an expression cannot be understood, so
// an editor is never left without a usable value.
func DefaultParts() Parts {
	return Parts{
		Frequency:  FreqDay,
		Interval:   1,
		Hour:       0,
		Minute:     0,
		DaysOfWeek: []int{},
		DayOfMonth: 1,
	}
}
