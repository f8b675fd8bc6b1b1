package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/host"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/queryir"
)

func intp(i int) *int { return &i }

var sampleTrace = []engine.TraceEvent{
	{Seq: 1, Kind: engine.TraceActivation, Node: 0, Op: "event/onStart"},
	{Seq: 2, Kind: engine.TraceFlow, Node: 0, Op: "event/onStart", Socket: "out"},
	{Seq: 3, Kind: engine.TraceLog, Node: 1, Op: "debug/log", Message: "a"},
	{Seq: 4, Kind: engine.TraceFlow, Node: 1, Op: "debug/log", Socket: "out"},
	{Seq: 5, Kind: engine.TraceLog, Node: 2, Op: "debug/log", Message: "b"},
	{Seq: 6, Kind: engine.TraceLog, Node: 1, Op: "debug/log", Message: "a"},
}

func TestEventMatch(t *testing.T) {
	ev := sampleTrace[1]
	tests := []struct {
		name  string
		match EventMatch
		want  bool
	}{
		{"empty matches all", EventMatch{}, true},
		{"kind", EventMatch{Kind: "flow"}, true},
		{"wrong kind", EventMatch{Kind: "log"}, false},
		{"op and socket", EventMatch{Op: "event/onStart", Socket: "out"}, true},
		{"node zero", EventMatch{Node: intp(0)}, true},
		{"wrong node", EventMatch{Node: intp(1)}, false},
		{"message", EventMatch{Message: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.match.Matches(ev))
		})
	}
}

func TestAssertTraceContains(t *testing.T) {
	found := Assertion{Type: AssertTraceContains, Event: EventMatch{Kind: "log", Message: "b"}}
	assert.NoError(t, assertTraceContains(sampleTrace, found))

	missing := Assertion{Type: AssertTraceContains, Event: EventMatch{Kind: "log", Message: "c"}}
	err := assertTraceContains(sampleTrace, missing)
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), `message="c"`)
	assert.Contains(t, err.Error(), "[5] log node=2 op=debug/log")
}

func TestAssertTraceOrder(t *testing.T) {
	tests := []struct {
		name    string
		seq     []EventMatch
		wantErr string
	}{
		{"in order", []EventMatch{{Message: "a"}, {Message: "b"}}, ""},
		{"gaps allowed", []EventMatch{{Kind: "activation"}, {Message: "b"}}, ""},
		{"repeat after", []EventMatch{{Message: "b"}, {Message: "a"}}, ""},
		{"out of order", []EventMatch{{Message: "b"}, {Kind: "activation"}}, "not found after the previous match"},
		{"missing first", []EventMatch{{Message: "z"}, {Message: "a"}}, `event {message="z"} not found`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceOrder(sampleTrace, Assertion{Type: AssertTraceOrder, Sequence: tt.seq})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		name  string
		match EventMatch
		count int
		ok    bool
	}{
		{"logs", EventMatch{Kind: "log"}, 3, true},
		{"repeated message", EventMatch{Message: "a"}, 2, true},
		{"zero", EventMatch{Kind: "error_flow"}, 0, true},
		{"wrong count", EventMatch{Kind: "flow"}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceCount(sampleTrace, Assertion{Type: AssertTraceCount, Event: tt.match, Count: tt.count})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "2 event(s)")
			}
		})
	}
}

func TestAssertFinalState(t *testing.T) {
	st := host.NewMemoryState()
	st.Define("/nodes/0/visible", ir.Bool(true), false)
	st.Define("/nodes/0/scale", ir.Float(2), false)

	assert.NoError(t, assertFinalState(st, Assertion{Path: "/nodes/0/visible", Value: true}))
	assert.NoError(t, assertFinalState(st, Assertion{Path: "/nodes/0/scale", Value: 2}), "ints compare against floats")

	err := assertFinalState(st, Assertion{Path: "/nodes/0/scale", Value: 3.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nodes/0/scale = 2")

	err = assertFinalState(st, Assertion{Path: "/nodes/9/scale", Value: 1})
	require.Error(t, err)
}

func TestEvaluateAssertions(t *testing.T) {
	errs := EvaluateAssertions(sampleTrace, nil, []Assertion{
		{Type: AssertTraceContains, Event: EventMatch{Message: "a"}},
		{Type: AssertTraceCount, Event: EventMatch{Kind: "log"}, Count: 1},
		{Type: AssertFinalState, Path: "/x", Value: 1},
		{Type: "bogus"},
	})
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "assertion 1:")
	assert.Contains(t, errs[1], "no host state")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}

func TestEventMatch_Predicate(t *testing.T) {
	assert.Nil(t, EventMatch{}.Predicate())
	assert.Equal(t,
		queryir.Equals{Field: queryir.FieldKind, Value: "log"},
		EventMatch{Kind: "log"}.Predicate())
	assert.Equal(t,
		queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: queryir.FieldOp, Value: "debug/log"},
			queryir.Equals{Field: queryir.FieldNode, Value: 2},
		}},
		EventMatch{Op: "debug/log", Node: intp(2)}.Predicate())
}
