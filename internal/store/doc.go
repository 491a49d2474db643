// Package store provides a SQLite-backed trace log of scenario runs.
//
// The log is append-only and diagnostic: it records which scenarios ran,
// whether they passed, and every event each run observed, so a failing run
// can be inspected after the fact with `idbtx trace`. It never holds object
// store records; the engine itself is purely in memory.
//
// # Tables
//
//   - runs: one row per scenario run, keyed by a run ID
//   - events: the run's trace events, keyed by (run_id, seq)
//
// # Ordering
//
// All queries order by seq, the logical insertion order. Writes use
// ON CONFLICT DO NOTHING, so re-recording a run is a no-op.
//
// # Database Configuration
//
//   - WAL mode for file databases
//   - One open connection (":memory:" databases stay shared)
//   - Foreign key enforcement
package store
