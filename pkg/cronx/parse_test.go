package cronx

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseOrDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr string
		want Parts
	}{
		{
			name: "minute step",
			expr: "*/5 * * * *",
			want: Parts{Frequency: FreqMinute, Interval: 5, Hour: 0, Minute: 0, DaysOfWeek: []int{}, DayOfMonth: 1},
		},
		{
			name: "minute step of one",
			expr: "*/1 * * * *",
			want: Parts{Frequency: FreqMinute, Interval: 1, Hour: 0, Minute: 0, DaysOfWeek: []int{}, DayOfMonth: 1},
		},
		{
			name: "minute step with range base",
			expr: "0-30/10 * * * *",
			want: Parts{Frequency: FreqMinute, Interval: 10, Hour: 0, Minute: 0, DaysOfWeek: []int{}, DayOfMonth: 1},
		},
		{
			name: "hour step keeps literal minute",
			expr: "30 */3 * * *",
			want: Parts{Frequency: FreqHour, Interval: 3, Hour: 0, Minute: 30, DaysOfWeek: []int{}, DayOfMonth: 1},
		},
		{
			name: "hour step with wildcard minute",
			expr: "* */2 * * *",
			want: Parts{Frequency: FreqHour, Interval: 2, Hour: 0, Minute: 0, DaysOfWeek: []int{}, DayOfMonth: 1},
		},
		{
			name: "hour step with junk minute",
			expr: "abc */2 * * *",
			want: Parts{Frequency: FreqHour, Interval: 2, Hour: 0, Minute: 0, DaysOfWeek: []int{}, DayOfMonth: 1},
		},
		{
			name: "daily",
			expr: "0 9 * * *",
			want: Parts{Frequency: FreqDay, Interval: 1, Hour: 9, Minute: 0, DaysOfWeek: []int{}, DayOfMonth: 1},
		},
		{
			name: "daily afternoon",
			expr: "30 14 * * *",
			want: Parts{Frequency: FreqDay, Interval: 1, Hour: 14, Minute: 30, DaysOfWeek: []int{}, DayOfMonth: 1},
		},
		{
			name: "all wildcards is the daily default",
			expr: "* * * * *",
			want: DefaultParts(),
		},
		{
			name: "weekly",
			expr: "0 9 * * 1,3,5",
			want: Parts{Frequency: FreqWeek, Interval: 1, Hour: 9, Minute: 0, DaysOfWeek: []int{1, 3, 5}, DayOfMonth: 1},
		},
		{
			name: "weekly days sorted and deduplicated",
			expr: "0 9 * * 5,1,3,3",
			want: Parts{Frequency: FreqWeek, Interval: 1, Hour: 9, Minute: 0, DaysOfWeek: []int{1, 3, 5}, DayOfMonth: 1},
		},
		{
			name: "weekly range",
			expr: "15 7 * * 1-5",
			want: Parts{Frequency: FreqWeek, Interval: 1, Hour: 7, Minute: 15, DaysOfWeek: []int{1, 2, 3, 4, 5}, DayOfMonth: 1},
		},
		{
			name: "monthly",
			expr: "0 9 15 * *",
			want: Parts{Frequency: FreqMonth, Interval: 1, Hour: 9, Minute: 0, DaysOfWeek: []int{}, DayOfMonth: 15},
		},
		{
			name: "monthly wins over weekly",
			expr: "0 9 15 * 1",
			want: Parts{Frequency: FreqMonth, Interval: 1, Hour: 9, Minute: 0, DaysOfWeek: []int{}, DayOfMonth: 15},
		},
		{
			name: "monthly with junk day falls back to the 1st",
			expr: "0 9 x * *",
			want: Parts{Frequency: FreqMonth, Interval: 1, Hour: 9, Minute: 0, DaysOfWeek: []int{}, DayOfMonth: 1},
		},
		{
			name: "fields classify by text shape even when unparseable",
			expr: "foo bar baz qux quux",
			want: Parts{Frequency: FreqMonth, Interval: 1, Hour: 0, Minute: 0, DaysOfWeek: []int{}, DayOfMonth: 1},
		},
		{
			name: "broken step is not an interval",
			expr: "*/abc * * * *",
			want: DefaultParts(),
		},
		{
			name: "zero step is not an interval",
			expr: "*/0 * * * *",
			want: DefaultParts(),
		},
		{
			name: "empty expression",
			expr: "",
			want: DefaultParts(),
		},
		{
			name: "too few fields",
			expr: "* * *",
			want: DefaultParts(),
		},
		{
			name: "too many fields",
			expr: "0 9 * * * 2024",
			want: DefaultParts(),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ParseOrDefault(tt.expr)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParseOrDefault(%q) = %+v, want %+v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expr    string
		wantErr error
	}{
		{name: "minute step", expr: "*/5 * * * *"},
		{name: "hour step", expr: "30 */3 * * *"},
		{name: "daily", expr: "0 9 * * *"},
		{name: "weekly", expr: "0 9 * * 1,3"},
		{name: "monthly", expr: "0 9 15 * *"},
		{name: "extra whitespace is normalized", expr: "  0   9 * *   *"},
		{name: "empty", expr: "", wantErr: ErrFieldCount},
		{name: "four fields", expr: "* * * *", wantErr: ErrFieldCount},
		{name: "six fields", expr: "0 0 9 * * *", wantErr: ErrFieldCount},
		{name: "minute out of range", expr: "61 * * * *", wantErr: ErrBadSyntax},
		{name: "garbage fields", expr: "a b c d e", wantErr: ErrBadSyntax},
		{name: "day list has no structured form", expr: "0 9 1,15 * *", wantErr: ErrNotCanonical},
		{name: "month restriction has no structured form", expr: "0 9 * 6 *", wantErr: ErrNotCanonical},
		{name: "minute range without step has no structured form", expr: "5-10 * * * *", wantErr: ErrNotCanonical},
		{name: "hour step discards weekday restriction", expr: "0 */3 * * 1", wantErr: ErrNotCanonical},
		{name: "range base step rebuilds differently", expr: "0-30/10 * * * *", wantErr: ErrNotCanonical},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.expr)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tt.expr, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.expr, err)
			}
			if want := ParseOrDefault(tt.expr); !reflect.DeepEqual(got, want) {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.expr, got, want)
			}
		})
	}
}

func TestBuildParseRoundTrip(t *testing.T) {
	t.Parallel()

	// Canonical expressions must survive decompose/rebuild unchanged.
	exprs := []string{
		"*/5 * * * *",
		"*/1 * * * *",
		"30 */3 * * *",
		"0 */1 * * *",
		"0 0 * * *",
		"0 9 * * *",
		"30 14 * * 1,3,5",
		"0 9 * * 0,6",
		"45 23 * * 0",
		"0 9 15 * *",
		"30 2 1 * *",
		"59 23 31 * *",
	}

	for _, expr := range exprs {
		expr := expr
		t.Run(expr, func(t *testing.T) {
			t.Parallel()

			if got := Build(ParseOrDefault(expr)); got != expr {
				t.Fatalf("Build(ParseOrDefault(%q)) = %q, want it unchanged", expr, got)
			}
		})
	}
}

func TestParseOrDefaultIdempotent(t *testing.T) {
	t.Parallel()

	// Non-canonical input normalizes in one pass: re-parsing the rebuilt
	// expression must not move the result again.
	exprs := []string{
		"0 9 15 * 1",
		"* * * * *",
		"not a cron at all",
		"0-30/10 * * * *",
		"5,10 * * * *",
		"0 9 * * 3,3,1",
		"x */4 * * *",
	}

	for _, expr := range exprs {
		expr := expr
		t.Run(expr, func(t *testing.T) {
			t.Parallel()

			first := ParseOrDefault(expr)
			second := ParseOrDefault(Build(first))
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("re-parse moved the result: first %+v, second %+v", first, second)
			}
		})
	}
}
