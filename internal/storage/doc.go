package storage

// Package storage persists the daemon's durable state.
//
// It currently holds:
//   - Schedules (canonical UTC cron expressions plus webhook targets)
//   - Run history appends (delivery outcomes, newest-first reads)
//   - Optional dispatcher dedup state (to survive restarts)
