package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/ixgraph/internal/config"
	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/host"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/queryir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string              // Assertion type for categorization
	Expected string              // Human-readable expected outcome
	Actual   string              // Human-readable actual outcome
	Trace    []engine.TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", formatEvent(ev))
		}
	}
	return buf.String()
}

func formatEvent(ev engine.TraceEvent) string {
	s := fmt.Sprintf("[%d] %s node=%d op=%s", ev.Seq, ev.Kind, ev.Node, ev.Op)
	if ev.Socket != "" {
		s += " socket=" + ev.Socket
	}
	if ev.Message != "" {
		s += fmt.Sprintf(" message=%q", ev.Message)
	}
	return s
}

func (m EventMatch) String() string {
	var parts []string
	if m.Kind != "" {
		parts = append(parts, "kind="+m.Kind)
	}
	if m.Op != "" {
		parts = append(parts, "op="+m.Op)
	}
	if m.Node != nil {
		parts = append(parts, fmt.Sprintf("node=%d", *m.Node))
	}
	if m.Socket != "" {
		parts = append(parts, "socket="+m.Socket)
	}
	if m.Message != "" {
		parts = append(parts, fmt.Sprintf("message=%q", m.Message))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Predicate converts m to a trace query predicate; nil when m is empty.
func (m EventMatch) Predicate() queryir.Predicate {
	var preds []queryir.Predicate
	text := func(f queryir.Field, v string) {
		if v != "" {
			preds = append(preds, queryir.Equals{Field: f, Value: v})
		}
	}
	text(queryir.FieldKind, m.Kind)
	text(queryir.FieldOp, m.Op)
	if m.Node != nil {
		preds = append(preds, queryir.Equals{Field: queryir.FieldNode, Value: *m.Node})
	}
	text(queryir.FieldSocket, m.Socket)
	text(queryir.FieldMessage, m.Message)
	return queryir.Where(preds...)
}

// Matches reports whether ev satisfies every set field of m.
func (m EventMatch) Matches(ev engine.TraceEvent) bool {
	return queryir.Eval(m.Predicate(), ev)
}

// assertTraceContains checks that some event matches.
func assertTraceContains(trace []engine.TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if a.Event.Matches(ev) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s", a.Event),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the sequence appears in order. Events need
// not be consecutive; each match must come after the previous one.
func assertTraceOrder(trace []engine.TraceEvent, a Assertion) error {
	pos := 0
	for i, want := range a.Sequence {
		found := false
		for pos < len(trace) {
			ev := trace[pos]
			pos++
			if want.Matches(ev) {
				found = true
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("event %d %s not found after the previous match", i, want)
			if i == 0 {
				actual = fmt.Sprintf("event %s not found", want)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Sequence),
				Actual:   actual,
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of matching events.
func assertTraceCount(trace []engine.TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if a.Event.Matches(ev) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d event(s) matching %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d event(s)", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks a host state path after the last step. The
// expected value is converted to the path's type before comparing.
func assertFinalState(state host.StateAccessor, a Assertion) error {
	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", a.Path, a.Value),
			Actual:   actual,
		}
	}

	got, err := state.Get(a.Path)
	if err != nil {
		return fail(err.Error())
	}
	if !valueMatches(got, a.Value) {
		return fail(fmt.Sprintf("%s = %s", a.Path, ir.Format(got)))
	}
	return nil
}

// valueMatches compares an IR value with a YAML scalar or component list.
func valueMatches(got ir.Value, want any) bool {
	if got == nil {
		return false
	}
	wants, err := config.ParamValues(map[string]any{"v": want})
	if err != nil {
		return false
	}
	w, ok := ir.Convert(wants["v"], got.Signature())
	return ok && ir.Equal(got, w)
}

// EvaluateAssertions runs every assertion and returns the failure
// messages. state may be nil when no assertion reads host state.
func EvaluateAssertions(trace []engine.TraceEvent, state host.StateAccessor, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(trace, a)
		case AssertTraceCount:
			err = assertTraceCount(trace, a)
		case AssertFinalState:
			if state == nil {
				err = fmt.Errorf("no host state to check %s", a.Path)
			} else {
				err = assertFinalState(state, a)
			}
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}
