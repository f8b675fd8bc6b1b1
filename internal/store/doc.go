// Package store provides SQLite-backed storage for encoded graphs and
// session traces.
//
// The store keeps three tables:
//   - graphs: canonical wire encodings, keyed by content hash
//   - sessions: one row per run of a graph, with the trace digest once finished
//   - trace_events: the append-only trace of each session
//
// Ordering uses the session's logical seq, never timestamps, so a stored
// trace reads back in the order the session produced it.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
