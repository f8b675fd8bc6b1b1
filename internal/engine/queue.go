package engine

import (
	"sync"

	"github.com/roach88/ixgraph/internal/ir"
)

// EventKind names an external trigger.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventTick     EventKind = "tick"
	EventSelect   EventKind = "select"
	EventHoverIn  EventKind = "hoverIn"
	EventHoverOut EventKind = "hoverOut"
	EventFire     EventKind = "fire"
)

// SelectArgs describes a selection or hover on a scene node.
type SelectArgs struct {
	Node       int
	Controller int
	Point      ir.Float3
	RayOrigin  ir.Float3
}

// Event is an external trigger delivered through Session.Enqueue.
type Event struct {
	Kind EventKind

	// Select is set for select and hover events.
	Select SelectArgs

	// CustomEvent and Params are set for fire events.
	CustomEvent string
	Params      map[string]ir.Value
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so event sources never block on a busy session.
// Thread-safety is provided for external enqueuing (cron jobs, MQTT
// callbacks) while the session's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the backing array does not retain Params.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close signals that no more events will be enqueued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
