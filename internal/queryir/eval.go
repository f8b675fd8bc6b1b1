package queryir

import (
	"strings"

	"github.com/roach88/ixgraph/internal/engine"
)

// Eval reports whether ev satisfies p. A nil predicate matches every
// event. Predicates that fail Validate never match.
func Eval(p Predicate, ev engine.TraceEvent) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		return evalEquals(pred, ev)
	case *Equals:
		return evalEquals(*pred, ev)
	case Prefix:
		return evalPrefix(pred, ev)
	case *Prefix:
		return evalPrefix(*pred, ev)
	case And:
		return evalAnd(pred, ev)
	case *And:
		return evalAnd(*pred, ev)
	}
	return false
}

func evalEquals(eq Equals, ev engine.TraceEvent) bool {
	got := value(ev, eq.Field)
	switch want := eq.Value.(type) {
	case int:
		n, ok := got.(int)
		return ok && n == want
	case int64:
		n, ok := got.(int)
		return ok && int64(n) == want
	case string:
		s, ok := got.(string)
		return ok && s == want
	}
	return false
}

func evalPrefix(p Prefix, ev engine.TraceEvent) bool {
	s, ok := value(ev, p.Field).(string)
	return ok && strings.HasPrefix(s, p.Prefix)
}

func evalAnd(a And, ev engine.TraceEvent) bool {
	for _, sub := range a.Predicates {
		if !Eval(sub, ev) {
			return false
		}
	}
	return true
}

// Filter returns the events of trace that satisfy p, in order.
func Filter(trace []engine.TraceEvent, p Predicate) []engine.TraceEvent {
	out := []engine.TraceEvent{}
	for _, ev := range trace {
		if Eval(p, ev) {
			out = append(out, ev)
		}
	}
	return out
}
