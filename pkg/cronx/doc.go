// Package cronx translates between 5-field cron expressions and a
// structured schedule representation that editors can bind to directly.
//
// The dialect is deliberately small: "minute hour day-of-month month
// day-of-week", where the month field is always the wildcard. Every
// expression maps to exactly one of five shapes (minute interval, hour
// interval, daily, weekly, monthly) through a fixed precedence chain,
// and every shape renders back to exactly one canonical expression.
//
// # Parsing
//
// ParseOrDefault never fails: input that does not split into five fields
// degrades to the daily-midnight default so a schedule editor always has
// something valid to show. Parse is the strict variant for callers that
// must reject input instead of coercing it (e.g. before persisting).
//
// # Time zones
//
// Stored expressions are UTC by convention. ToUTC and FromUTC shift the
// wall-clock fields between a named location and UTC, resolving the
// offset at an explicit reference instant so conversions stay
// deterministic and testable. Offsets are handled at minute precision
// (UTC+05:30 converts exactly), and day selectors shift when the
// conversion crosses midnight; day-of-month clamps at month boundaries
// carry a warning because the dialect cannot express them exactly.
package cronx
