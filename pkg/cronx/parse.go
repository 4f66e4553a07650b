package cronx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Parse errors. Match with errors.Is.
var (
	// ErrFieldCount means the expression does not split into exactly
	// five whitespace-separated fields.
	ErrFieldCount = errors.New("cron: expected 5 fields")
	// ErrBadSyntax means the standard cron grammar rejected the
	// expression outright.
	ErrBadSyntax = errors.New("cron: invalid expression")
	// ErrNotCanonical means the expression is valid cron but uses a
	// construct this dialect cannot represent faithfully, so a rebuild
	// from its parsed form would change its meaning.
	ErrNotCanonical = errors.New("cron: expression is not canonical")
)

// standardParser accepts the plain 5-field dialect. Seconds and
// descriptors like @hourly are deliberately not enabled.
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseOrDefault decomposes expr into Parts. It is total: anything that
// does not split into five fields yields DefaultParts (daily at
// midnight), and values that fail to parse inside a field fall back to
// the shape's defaults instead of being reported. Callers that need to
// reject bad input use Parse.
//
// Shape detection is a fixed precedence chain, first match wins:
//
//  1. minute field carries a step     -> minute interval
//  2. hour field carries a step       -> hour interval, minute literal
//  3. day-of-month field is not "*"   -> monthly (day-of-week ignored)
//  4. day-of-week field is not "*"    -> weekly
//  5. otherwise                       -> daily
//
// Rule 3 before rule 4 means "0 9 15 * 1" is a monthly schedule on the
// 15th and the weekday restriction is dropped, because the structured
// form has no shape for "monthly but only when it lands on a Monday".
func ParseOrDefault(expr string) Parts {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return DefaultParts()
	}
	minuteF, hourF, domF, dowF := fields[0], fields[1], fields[2], fields[4]

	p := DefaultParts()
	switch {
	case hasStep(minuteF):
		n, _ := stepInterval(minuteF)
		p.Frequency = FreqMinute
		p.Interval = n
	case hasStep(hourF):
		n, _ := stepInterval(hourF)
		p.Frequency = FreqHour
		p.Interval = n
		p.Minute = firstOr(parseField(minuteF), 0)
	case domF != "*":
		p.Frequency = FreqMonth
		p.DayOfMonth = firstOr(parseField(domF), 1)
		p.Hour = firstOr(parseField(hourF), 0)
		p.Minute = firstOr(parseField(minuteF), 0)
	case dowF != "*":
		p.Frequency = FreqWeek
		p.DaysOfWeek = append([]int{}, parseField(dowF)...)
		p.Hour = firstOr(parseField(hourF), 0)
		p.Minute = firstOr(parseField(minuteF), 0)
	default:
		p.Frequency = FreqDay
		p.Hour = firstOr(parseField(hourF), 0)
		p.Minute = firstOr(parseField(minuteF), 0)
	}
	return p
}

func hasStep(field string) bool {
	_, ok := stepInterval(field)
	return ok
}

// Parse is the validating variant of ParseOrDefault. Whitespace between
// fields is normalized, then the expression must (a) have five fields,
// (b) pass the standard cron grammar, and (c) survive a decompose/build
// round trip unchanged. (c) is what keeps the structured editor honest:
// an expression like "0 9 1,15 * *" is real cron, but the editor would
// silently show it as "monthly on the 1st", so it is rejected instead.
func Parse(expr string) (Parts, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Parts{}, fmt.Errorf("%w, got %d in %q", ErrFieldCount, len(fields), expr)
	}
	norm := strings.Join(fields, " ")
	if _, err := standardParser.Parse(norm); err != nil {
		return Parts{}, fmt.Errorf("%w: %v", ErrBadSyntax, err)
	}
	p := ParseOrDefault(norm)
	if rebuilt := Build(p); rebuilt != norm {
		return Parts{}, fmt.Errorf("%w: %q parses as %q", ErrNotCanonical, norm, rebuilt)
	}
	return p, nil
}
