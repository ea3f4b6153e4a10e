// Package storage is the optional run journal: an append-only record of every
// finished check-in cycle. Nothing is ever read back into the schedule.
//
// Drivers:
//   - "none" (or empty): disabled, Open returns ErrDisabled
//   - "file": JSON Lines, one record per line
//   - "sqlite": a SQLite database (modernc.org/sqlite, pure Go)
package storage
