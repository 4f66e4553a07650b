// Package scheduler runs the stored webhook schedules.
//
// # Overview
//
// Every persisted schedule carries a canonical 5-field cron expression
// that is always interpreted in UTC (translation from the editor's
// local wall clock happens before the expression is stored, see
// pkg/cronx). The service registers each enabled schedule with a
// robfig/cron runner pinned to time.UTC and funnels trigger callbacks
// through a bounded queue and worker pool, so a slow delivery pipeline
// never stalls the cron goroutine.
//
// # Firing
//
// A trigger produces a Fire value stamped with the minute it was due.
// Workers hand fires to the FireFunc the composition root wires in
// (the webhook dispatcher), retrying with exponential backoff when the
// pipeline refuses the fire. Terminal refusals are recorded as
// "dropped" runs; an overlap-skipped trigger is recorded as "skipped".
// Successful handoffs are recorded by the delivery pipeline once the
// webhook outcome is known, so every fire ends up as exactly one run
// row.
//
// # Lifecycle
//
// The service can be started and stopped at runtime (config hot
// reload). Entries survive a stop: Upsert and Remove work while
// stopped, and the registered set is re-armed on the next Start. Sync
// reconciles the full entry set against storage in one call.
package scheduler
