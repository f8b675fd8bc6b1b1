// Package engine executes interactivity graphs.
//
// Load validates an ir.Graph against a schema registry and returns an
// immutable Program. A Program creates any number of Sessions; each
// session owns its variables, per-node state and continuation table.
//
// Execution model:
//
// Every external trigger (Start, Tick, Select, HoverIn, HoverOut, Fire)
// is one activation. Flow runs depth-first from the triggered event
// nodes: a node fires a flow-out, the connected node runs to completion,
// then control returns. Value inputs are pulled lazily from their
// source each time a node reads them.
//
// Deferred work (delays, interpolations, playing animations) lives in
// continuations. Tick advances the continuations present when it begins,
// in scheduling order, then fires event/onTick.
//
// Single-writer loop:
// A session is not safe for concurrent use. Run processes queued events
// in one goroutine; Enqueue and Stop may be called from anywhere.
//
// Trace events carry a monotonic sequence number from the session's
// logical Clock. Wall-clock time only drives ticks.
package engine
