package engine

import (
	"sync"

	"github.com/roach88/ixgraph/internal/ir"
)

// TraceKind names what a trace event records.
type TraceKind string

const (
	TraceActivation            TraceKind = "activation"
	TraceFlow                  TraceKind = "flow"
	TraceErrorFlow             TraceKind = "error_flow"
	TraceLog                   TraceKind = "log"
	TraceVariable              TraceKind = "variable"
	TraceContinuationScheduled TraceKind = "continuation_scheduled"
	TraceContinuationDone      TraceKind = "continuation_done"
)

// TraceEvent is one step of a session. Seq comes from the session's
// logical clock, so two runs of the same inputs produce identical traces.
type TraceEvent struct {
	Seq     int64     `json:"seq"`
	Session string    `json:"session"`
	Kind    TraceKind `json:"kind"`
	Node    int       `json:"node"`
	Op      string    `json:"op"`
	Socket  string    `json:"socket,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Observer receives every trace event of a session, synchronously, on the
// goroutine driving the session.
type Observer interface {
	Observe(TraceEvent)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(TraceEvent)

func (f ObserverFunc) Observe(ev TraceEvent) { f(ev) }

// Recorder is an Observer that keeps every event. It is safe to read
// from another goroutine while the session runs.
type Recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (r *Recorder) Observe(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the recorded events of the given kind.
func (r *Recorder) Filter(kind TraceKind) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Messages returns the messages of the recorded events of the given kind.
func (r *Recorder) Messages(kind TraceKind) []string {
	var out []string
	for _, ev := range r.Filter(kind) {
		out = append(out, ev.Message)
	}
	return out
}

// CanonicalTrace renders events as canonical JSON. Session ids are left
// out so traces of different sessions over the same inputs compare equal.
func CanonicalTrace(events []TraceEvent) ([]byte, error) {
	list := make([]any, 0, len(events))
	for _, ev := range events {
		list = append(list, canonicalMap(ev))
	}
	return ir.MarshalCanonical(list)
}

// CanonicalEvent renders one event the way CanonicalTrace renders each
// element.
func CanonicalEvent(ev TraceEvent) ([]byte, error) {
	return ir.MarshalCanonical(canonicalMap(ev))
}

func canonicalMap(ev TraceEvent) map[string]any {
	m := map[string]any{
		"seq":  ev.Seq,
		"kind": string(ev.Kind),
		"node": ev.Node,
		"op":   ev.Op,
	}
	if ev.Socket != "" {
		m["socket"] = ev.Socket
	}
	if ev.Message != "" {
		m["message"] = ev.Message
	}
	return m
}

// Digest returns the content hash of the canonical trace of events.
func Digest(events []TraceEvent) (string, error) {
	data, err := CanonicalTrace(events)
	if err != nil {
		return "", err
	}
	return ir.TraceDigest(data), nil
}
