// Package api exposes the schedule editor surface over HTTP.
//
// Two groups of endpoints share one server:
//
//   - /v1/cron/* are stateless translation calls (expression ⇄ parts,
//     local ⇄ UTC); they work even when storage is disabled.
//   - /v1/schedules* edit persisted schedules; writes re-validate the
//     cron text and keep the running scheduler in sync, so a saved
//     change takes effect without a restart.
//
// The server binds to loopback by default. Binding anywhere else
// requires a bearer token or an explicit allow_insecure, matching the
// pprof service. /healthz stays unauthenticated for probes.
package api
