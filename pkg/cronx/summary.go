package cronx

import "fmt"

// Summary renders a short human phrase for p: "Every 5 mins",
// "Every 1 hr", "Daily 9am", "Weekly 2:30pm", "Monthly 12am". It is
// total; an unknown frequency falls back to the daily phrasing.
func Summary(p Parts) string {
	switch p.Frequency {
	case FreqMinute:
		return "Every " + countNoun(p.Interval, "min")
	case FreqHour:
		return "Every " + countNoun(p.Interval, "hr")
	case FreqWeek:
		return "Weekly " + clock12(p.Hour, p.Minute)
	case FreqMonth:
		return "Monthly " + clock12(p.Hour, p.Minute)
	default:
		return "Daily " + clock12(p.Hour, p.Minute)
	}
}

func countNoun(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// clock12 renders a 24h clock value in the compact 12-hour form used in
// summaries. Midnight is "12am", noon "12pm", and the minute is omitted
// when zero: "9am", "2:30pm".
func clock12(hour, minute int) string {
	suffix := "am"
	h := hour
	switch {
	case h == 0:
		h = 12
	case h == 12:
		suffix = "pm"
	case h > 12:
		h -= 12
		suffix = "pm"
	}
	if minute == 0 {
		return fmt.Sprintf("%d%s", h, suffix)
	}
	return fmt.Sprintf("%d:%02d%s", h, minute, suffix)
}
