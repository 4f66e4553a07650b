package api

import (
	"time"

	rtsup "cronshift/internal/runtime/supervisor"
	"cronshift/internal/services/dispatch"
	"cronshift/internal/services/scheduler"
	"cronshift/internal/storage"
	"cronshift/pkg/cronx"
)

type errorResponse struct {
	Error string `json:"error"`
}

type cronParseRequest struct {
	Cron   string `json:"cron"`
	Strict bool   `json:"strict,omitempty"`
}

type cronBuildRequest struct {
	Parts *cronx.Parts `json:"parts"`
}

// cronConvertRequest serves both conversion directions: to-utc reads
// Parts, from-utc reads Cron. Timezone is required either way; Date is
// the optional YYYY-MM-DD the offset is resolved at.
type cronConvertRequest struct {
	Cron     string       `json:"cron,omitempty"`
	Parts    *cronx.Parts `json:"parts,omitempty"`
	Timezone string       `json:"timezone"`
	Date     string       `json:"date,omitempty"`
}

type cronTranslationResponse struct {
	Cron    string      `json:"cron"`
	Parts   cronx.Parts `json:"parts"`
	Summary string      `json:"summary"`
}

type cronConvertResponse struct {
	Cron    string      `json:"cron"`
	Parts   cronx.Parts `json:"parts"`
	Summary string      `json:"summary"`
	Warning string      `json:"warning,omitempty"`
}

type scheduleRequest struct {
	Name       string       `json:"name"`
	Cron       string       `json:"cron,omitempty"`
	Parts      *cronx.Parts `json:"parts,omitempty"`
	Timezone   string       `json:"timezone,omitempty"`
	WebhookURL string       `json:"webhook_url"`
	Enabled    *bool        `json:"enabled,omitempty"`
}

// scheduleView is the stored record plus derived display fields.
// Warning only appears on write responses when a parts conversion
// flagged something (DST-unstable offset, dropped day constraint).
type scheduleView struct {
	storage.Schedule
	Summary string     `json:"summary,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`
	Warning string     `json:"warning,omitempty"`
}

func newScheduleView(sched storage.Schedule, warning string) scheduleView {
	v := scheduleView{Schedule: sched, Warning: warning}
	if p, err := cronx.Parse(sched.Cron); err == nil {
		v.Summary = cronx.Summary(p)
	}
	if !sched.Enabled {
		return v
	}
	if times, err := scheduler.PreviewNext(sched.Cron, time.Now(), 1); err == nil && len(times) == 1 {
		t := times[0]
		v.NextRun = &t
	}
	return v
}

type scheduleListResponse struct {
	Schedules []scheduleView `json:"schedules"`
}

type scheduleRunsResponse struct {
	ScheduleID string             `json:"schedule_id"`
	Runs       []storage.RunEntry `json:"runs"`
}

type schedulePreviewResponse struct {
	ScheduleID string      `json:"schedule_id"`
	Cron       string      `json:"cron"`
	Times      []time.Time `json:"times"`
}

type statusResponse struct {
	Status     string              `json:"status"`
	StartedAt  time.Time           `json:"started_at"`
	Uptime     string              `json:"uptime"`
	Scheduler  *scheduler.Snapshot `json:"scheduler,omitempty"`
	Dispatch   *dispatch.Snapshot  `json:"dispatch,omitempty"`
	Supervisor *rtsup.Snapshot     `json:"supervisor,omitempty"`
	Storage    storageStatus       `json:"storage"`
}

type storageStatus struct {
	Enabled   bool `json:"enabled"`
	Schedules int  `json:"schedules"`
}
