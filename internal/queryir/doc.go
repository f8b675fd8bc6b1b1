// Package queryir is the query representation for recorded session traces.
//
// A query names the events to read from the trace store: which session
// (or every session of a graph), which seq window, and a predicate over
// the event columns. The same predicate can be evaluated in memory
// against live events, so a filter behaves identically whether it runs in
// SQL or on a recorder.
//
// Query and Predicate are sealed: only types in this package implement
// them, and backends switch over them exhaustively.
//
//	[cli flags / scenario matchers] → [queryir] → [querysql → SQLite]
//	                                            → [Eval on live events]
//
// Fields map one to one onto trace event columns. node is an integer
// column; every other field is text.
package queryir
