package cronx

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestPartsSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		parts   Parts
		want    Schedule
		wantErr string
	}{
		{
			name:  "minute interval",
			parts: Parts{Frequency: FreqMinute, Interval: 5},
			want:  MinuteInterval{Interval: 5},
		},
		{
			name:  "hour interval",
			parts: Parts{Frequency: FreqHour, Interval: 3, Minute: 30},
			want:  HourInterval{Interval: 3, Minute: 30},
		},
		{
			name:  "daily",
			parts: Parts{Frequency: FreqDay, Hour: 9, Minute: 0},
			want:  Daily{Hour: 9},
		},
		{
			name:  "weekly sorts and deduplicates days",
			parts: Parts{Frequency: FreqWeek, Hour: 9, DaysOfWeek: []int{5, 1, 1, 3}},
			want:  Weekly{Hour: 9, Days: []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		},
		{
			name:  "weekly with no days",
			parts: Parts{Frequency: FreqWeek, Hour: 9},
			want:  Weekly{Hour: 9},
		},
		{
			name:  "monthly",
			parts: Parts{Frequency: FreqMonth, Hour: 9, DayOfMonth: 15},
			want:  Monthly{Hour: 9, Day: 15},
		},
		{
			name:    "zero minute interval",
			parts:   Parts{Frequency: FreqMinute, Interval: 0},
			wantErr: "interval must be at least 1",
		},
		{
			name:    "hour interval minute out of range",
			parts:   Parts{Frequency: FreqHour, Interval: 2, Minute: 60},
			wantErr: "minute must be in 0..59",
		},
		{
			name:    "daily hour out of range",
			parts:   Parts{Frequency: FreqDay, Hour: 24},
			wantErr: "hour must be in 0..23",
		},
		{
			name:    "weekly day out of range",
			parts:   Parts{Frequency: FreqWeek, Hour: 9, DaysOfWeek: []int{1, 7}},
			wantErr: "day of week must be in 0..6",
		},
		{
			name:    "weekly negative day",
			parts:   Parts{Frequency: FreqWeek, Hour: 9, DaysOfWeek: []int{-1}},
			wantErr: "day of week must be in 0..6",
		},
		{
			name:    "monthly day zero",
			parts:   Parts{Frequency: FreqMonth, Hour: 9, DayOfMonth: 0},
			wantErr: "day of month must be in 1..31",
		},
		{
			name:    "monthly day too large",
			parts:   Parts{Frequency: FreqMonth, Hour: 9, DayOfMonth: 32},
			wantErr: "day of month must be in 1..31",
		},
		{
			name:    "unknown frequency",
			parts:   Parts{Frequency: Frequency("yearly")},
			wantErr: "unknown frequency",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.parts.Schedule()
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Schedule(%+v) returned %+v, want error containing %q", tt.parts, got, tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Schedule(%+v) error = %q, want it to contain %q", tt.parts, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Schedule(%+v) returned error: %v", tt.parts, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Schedule(%+v) = %#v, want %#v", tt.parts, got, tt.want)
			}
		})
	}
}

func TestScheduleCronMatchesBuild(t *testing.T) {
	t.Parallel()

	// For valid parts the typed shape and the raw builder must agree on
	// the expression.
	cases := []Parts{
		{Frequency: FreqMinute, Interval: 5},
		{Frequency: FreqHour, Interval: 2, Minute: 15},
		{Frequency: FreqDay, Hour: 23, Minute: 59},
		{Frequency: FreqWeek, Hour: 9, DaysOfWeek: []int{0, 6}},
		{Frequency: FreqWeek, Hour: 9, DaysOfWeek: []int{}},
		{Frequency: FreqMonth, Hour: 0, Minute: 30, DayOfMonth: 31},
	}

	for _, p := range cases {
		p := p
		t.Run(string(p.Frequency), func(t *testing.T) {
			t.Parallel()

			sched, err := p.Schedule()
			if err != nil {
				t.Fatalf("Schedule(%+v) returned error: %v", p, err)
			}
			if got, want := sched.Cron(), Build(p); got != want {
				t.Fatalf("Cron() = %q, Build = %q; they must agree", got, want)
			}
		})
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	t.Parallel()

	// Schedule -> Parts -> Schedule is the identity for every shape.
	scheds := []Schedule{
		MinuteInterval{Interval: 10},
		HourInterval{Interval: 4, Minute: 20},
		Daily{Hour: 6, Minute: 45},
		Weekly{Hour: 18, Minute: 0, Days: []time.Weekday{time.Tuesday, time.Thursday}},
		Monthly{Hour: 3, Minute: 15, Day: 28},
	}

	for _, sched := range scheds {
		sched := sched
		t.Run(sched.Cron(), func(t *testing.T) {
			t.Parallel()

			back, err := sched.Parts().Schedule()
			if err != nil {
				t.Fatalf("Parts().Schedule() returned error: %v", err)
			}
			if !reflect.DeepEqual(back, sched) {
				t.Fatalf("round trip changed the schedule: got %#v, want %#v", back, sched)
			}
		})
	}
}
