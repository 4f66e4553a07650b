// Package logx is the thin logging layer over zerolog shared by every
// component. Handlers and services carry a Logger value; the Service
// behind it owns the sinks, so a config reload can swap level and
// output without touching any of the handed-out loggers.
//
// Console output stays human-readable; the optional file sink writes
// JSON lines.
package logx
