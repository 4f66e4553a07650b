// Package dispatch delivers fired schedules to their webhooks.
//
// The pipeline is the usual async sender shape: a bounded queue feeds
// a worker pool; workers rate-limit, POST the fire payload as JSON and
// retry transient failures with jittered exponential backoff. The
// terminal outcome of every delivery ("delivered" or "failed") is
// written to run history, which is why the scheduler only records the
// fires that never made it into this pipeline.
//
// A dedup window keyed on (schedule, due minute) suppresses double
// deliveries when the same fire is enqueued twice, e.g. around a
// scheduler restart. With persist_dedup the window also survives
// process restarts on persistent storage drivers.
package dispatch
