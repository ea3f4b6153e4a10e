// Package logx is voyagebot's logging layer: a value-type Logger over zerolog
// with typed Field helpers and a Service that owns the sinks.
//
// Sinks are the console (short timestamp and caller), a JSON file and an
// in-memory Ring of recent events. While the dashboard owns the terminal the
// console sink is off and the dashboard renders the ring instead.
package logx
