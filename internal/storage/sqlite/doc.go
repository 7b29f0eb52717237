// Package sqlite contains the SQLite repositories for calibration
// domain types.
//
// All database read/write operations for runs and per-agent error
// summaries belong here rather than in the scoring or simulation
// layers. This keeps the objective math free of SQL noise and makes it
// easier to swap storage backends for testing.
package sqlite
