// Package harness runs conformance scenarios against the engine.
//
// A scenario names an authoring graph and a list of steps (start, tick,
// select, hover, fire). The harness compiles and cleans the graph, then
// runs the steps twice on identical fresh sessions: once on the cleaned
// graph itself and once on the graph after an encode/decode round trip
// through the wire format. Both runs must produce the same canonical
// trace.
//
// Sessions run on a simulated clock with a fixed session id, so a
// scenario's trace is reproducible byte for byte. The first run is
// recorded into an in-memory store and its digest verified on read-back.
//
// Scenario expectations cover logs, final variable values, expected
// runtime errors per step and assertions over the trace:
//
//	trace_contains  an event matching kind/op/node/socket/message exists
//	trace_order     matching events appear in the given order
//	trace_count     exactly N events match
//	final_state     a host state path holds a value after the last step
//
// RunWithGolden additionally compares the trace with a golden file under
// testdata/golden. To regenerate golden files, run:
//
//	go test ./internal/harness -update
package harness
