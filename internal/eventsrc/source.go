// Package eventsrc feeds external events into running sessions.
//
// A Source turns something outside the graph (a schedule, a broker
// message) into engine events and hands them to a Sink. Sessions are
// sinks: Session.Enqueue is safe to call from a source's goroutine.
package eventsrc

import (
	"context"

	"github.com/roach88/ixgraph/internal/engine"
)

// Sink accepts events. It returns false once it no longer accepts them.
type Sink interface {
	Enqueue(ev engine.Event) bool
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev engine.Event) bool

func (f SinkFunc) Enqueue(ev engine.Event) bool { return f(ev) }

// Source delivers events to a sink between Start and Stop.
type Source interface {
	// Start begins delivery. The source stops on its own when ctx is
	// cancelled.
	Start(ctx context.Context, sink Sink) error

	// Stop ends delivery and waits for in-flight callbacks.
	Stop() error
}
