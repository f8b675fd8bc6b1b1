package engine

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

const counterYAML = `
name: counter
variables:
  - {id: count, type: int, default: 0}
units:
  - {id: start, kind: OnStart}
  - id: set
    kind: SetVariable
    config: {variable: count}
    literals: {value: 5}
  - id: log
    kind: Log
    config: {message: "{count}"}
control:
  - {from: {unit: start, pin: out}, to: {unit: set, pin: in}}
  - {from: {unit: set, pin: out}, to: {unit: log, pin: in}}
`

func TestSessionCounter(t *testing.T) {
	f := newFixture(t, compileYAML(t, counterYAML))

	require.NoError(t, f.s.Start())

	assert.Equal(t, []string{"5"}, f.logs.all())
	v, ok := f.s.Variable("count")
	require.True(t, ok)
	assert.Equal(t, ir.Int(5), v)
	assert.Equal(t, []string{"count=5"}, f.rec.Messages(TraceVariable))
}

func TestSessionVariablesStartAtDefaults(t *testing.T) {
	b := newBuilder()
	b.variable("speed", ir.SigFloat, ir.Float(2.5))
	b.variable("hits", ir.SigInt, nil)
	f := newFixture(t, b.load(t))

	assert.Equal(t, map[string]ir.Value{"speed": ir.Float(2.5), "hits": ir.Int(0)}, f.s.Variables())
	_, ok := f.s.Variable("missing")
	assert.False(t, ok)
}

func TestSequenceFiresInNumericOrder(t *testing.T) {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	seq := b.node(schema.OpSequence, nil)
	b.flow(start, schema.Out, seq, schema.In)
	for _, name := range []string{"10", "2", "0", "1"} {
		b.flow(seq, name, b.log("out "+name), schema.In)
	}
	f := newFixture(t, b.load(t))

	require.NoError(t, f.s.Start())
	assert.Equal(t, []string{"out 0", "out 1", "out 2", "out 10"}, f.logs.all())
}

func TestBranchAndSwitch(t *testing.T) {
	tests := []struct {
		name      string
		condition bool
		selection int64
		want      []string
	}{
		{"true and matching case", true, 3, []string{"true", "case 3"}},
		{"false and default", false, 2, []string{"false", "default"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder()
			start := b.node(schema.OpOnStart, nil)
			seq := b.node(schema.OpSequence, nil)
			br := b.node(schema.OpBranch, nil)
			sw := b.node(schema.OpSwitch, map[string]ir.Value{"cases": ir.IntArray{1, 3}})
			b.flow(start, schema.Out, seq, schema.In).
				flow(seq, "0", br, schema.In).
				flow(seq, "1", sw, schema.In).
				lit(br, "condition", ir.Bool(tt.condition)).
				lit(sw, "selection", ir.Int(tt.selection))
			b.flow(br, "true", b.log("true"), schema.In)
			b.flow(br, "false", b.log("false"), schema.In)
			b.flow(sw, "1", b.log("case 1"), schema.In)
			b.flow(sw, "3", b.log("case 3"), schema.In)
			b.flow(sw, schema.Default, b.log("default"), schema.In)
			f := newFixture(t, b.load(t))

			require.NoError(t, f.s.Start())
			assert.Equal(t, tt.want, f.logs.all())
		})
	}
}

func TestWaitAllCompletesOnce(t *testing.T) {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	seq := b.node(schema.OpSequence, nil)
	wait := b.node(schema.OpWaitAll, map[string]ir.Value{"inputFlows": ir.Int(2)})
	before := b.log("before {r}")
	out := b.log("out {r}")
	done := b.log("completed {r}")

	b.flow(start, schema.Out, seq, schema.In).
		flow(seq, "0", before, schema.In).
		flow(before, schema.Out, wait, "0").
		flow(seq, "1", wait, "1").
		flow(seq, "2", wait, "0").
		flow(wait, schema.Out, out, schema.In).
		flow(wait, schema.Completed, done, schema.In)
	for _, n := range []int{before, out, done} {
		b.link(n, "r", wait, "remainingInputs")
	}
	f := newFixture(t, b.load(t))

	require.NoError(t, f.s.Start())
	assert.Equal(t, []string{"before 2", "out 1", "completed 0", "out 0"}, f.logs.all())
}

func TestWaitAllReset(t *testing.T) {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	seq := b.node(schema.OpSequence, nil)
	wait := b.node(schema.OpWaitAll, map[string]ir.Value{"inputFlows": ir.Int(1)})
	done := b.log("completed")
	b.flow(start, schema.Out, seq, schema.In).
		flow(seq, "0", wait, "0").
		flow(seq, "1", wait, schema.Reset).
		flow(seq, "2", wait, "0").
		flow(wait, schema.Completed, done, schema.In)
	f := newFixture(t, b.load(t))

	require.NoError(t, f.s.Start())
	assert.Equal(t, []string{"completed", "completed"}, f.logs.all())
}

func TestDoN(t *testing.T) {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	seq := b.node(schema.OpSequence, nil)
	doN := b.node(schema.OpDoN, nil)
	l := b.log("{c}")
	b.lit(doN, "n", ir.Int(2)).link(l, "c", doN, "currentCount")
	b.flow(start, schema.Out, seq, schema.In).
		flow(seq, "0", doN, schema.In).
		flow(seq, "1", doN, schema.In).
		flow(seq, "2", doN, schema.In).
		flow(seq, "3", doN, schema.Reset).
		flow(seq, "4", doN, schema.In).
		flow(doN, schema.Out, l, schema.In)
	f := newFixture(t, b.load(t))

	require.NoError(t, f.s.Start())
	assert.Equal(t, []string{"1", "2", "1"}, f.logs.all())
}

func multiGateGraph(t *testing.T, loop, random bool, triggers int) *Program {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	seq := b.node(schema.OpSequence, nil)
	gate := b.node(schema.OpMultiGate, map[string]ir.Value{
		"isLoop":   ir.Bool(loop),
		"isRandom": ir.Bool(random),
	})
	b.flow(start, schema.Out, seq, schema.In)
	for k := range triggers {
		b.flow(seq, strconv.Itoa(k), gate, schema.In)
	}
	for k := range 3 {
		l := b.log("gate " + strconv.Itoa(k) + " last {i}")
		b.link(l, "i", gate, "lastIndex")
		b.flow(gate, strconv.Itoa(k), l, schema.In)
	}
	return b.load(t)
}

func TestMultiGate(t *testing.T) {
	t.Run("stops after last output", func(t *testing.T) {
		f := newFixture(t, multiGateGraph(t, false, false, 4))
		require.NoError(t, f.s.Start())
		assert.Equal(t, []string{"gate 0 last 0", "gate 1 last 1", "gate 2 last 2"}, f.logs.all())
	})

	t.Run("loop wraps around", func(t *testing.T) {
		f := newFixture(t, multiGateGraph(t, true, false, 5))
		require.NoError(t, f.s.Start())
		assert.Equal(t, []string{
			"gate 0 last 0", "gate 1 last 1", "gate 2 last 2",
			"gate 0 last 0", "gate 1 last 1",
		}, f.logs.all())
	})

	t.Run("random visits every output once per round", func(t *testing.T) {
		f := newFixture(t, multiGateGraph(t, false, true, 3), WithSeed(42))
		require.NoError(t, f.s.Start())
		assert.ElementsMatch(t, []string{"gate 0 last 0", "gate 1 last 1", "gate 2 last 2"}, f.logs.all())
	})

	t.Run("random order is reproducible per seed", func(t *testing.T) {
		p := multiGateGraph(t, true, true, 9)
		a := newFixture(t, p, WithSeed(7))
		b := newFixture(t, p, WithSeed(7))
		require.NoError(t, a.s.Start())
		require.NoError(t, b.s.Start())
		assert.Equal(t, a.logs.all(), b.logs.all())
	})
}

func customEventGraph(t *testing.T) *Program {
	b := newBuilder()
	b.g.CustomEvents = []ir.CustomEvent{{
		ID:     "ping",
		Params: []ir.EventParam{{Name: "n", Type: ir.SigInt, Default: ir.Int(7)}},
	}}
	start := b.node(schema.OpOnStart, nil)
	send := b.node(schema.OpSend, map[string]ir.Value{"event": ir.Int(0)})
	after := b.log("sent")
	recv := b.node(schema.OpReceive, map[string]ir.Value{"event": ir.Int(0)})
	got := b.log("got {n}")
	b.flow(start, schema.Out, send, schema.In).
		lit(send, "n", ir.Int(3)).
		flow(send, schema.Out, after, schema.In).
		flow(recv, schema.Out, got, schema.In).
		link(got, "n", recv, "n")
	return b.load(t)
}

func TestSendIsDeliveredAfterActivation(t *testing.T) {
	f := newFixture(t, customEventGraph(t))

	require.NoError(t, f.s.Start())
	assert.Equal(t, []string{"sent", "got 3"}, f.logs.all())
}

func TestFire(t *testing.T) {
	f := newFixture(t, customEventGraph(t))

	require.NoError(t, f.s.Fire("ping", nil))
	require.NoError(t, f.s.Fire("ping", map[string]ir.Value{"n": ir.Float(9)}))
	assert.Equal(t, []string{"got 7", "got 9"}, f.logs.all())

	err := f.s.Fire("pong", nil)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ErrCodeUnknownEvent, rerr.Code)

	err = f.s.Fire("ping", map[string]ir.Value{"n": ir.String("x")})
	require.Error(t, err)
}

func selectGraph(t *testing.T) *Program {
	b := newBuilder()
	exact := b.node(schema.OpOnSelect, map[string]ir.Value{
		"nodeIndex":       ir.Int(3),
		"stopPropagation": ir.Bool(true),
	})
	wildcard := b.node(schema.OpOnSelect, nil)
	l1 := b.log("exact {n}")
	l2 := b.log("any {n}")
	b.flow(exact, schema.Out, l1, schema.In).link(l1, "n", exact, "selectedNodeIndex")
	b.flow(wildcard, schema.Out, l2, schema.In).link(l2, "n", wildcard, "selectedNodeIndex")
	return b.load(t)
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name string
		node int
		want []string
	}{
		{"exact match stops propagation", 3, []string{"exact 3"}},
		{"other nodes reach the wildcard", 4, []string{"any 4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, selectGraph(t))
			require.NoError(t, f.s.Select(SelectArgs{Node: tt.node}))
			assert.Equal(t, tt.want, f.logs.all())
		})
	}
}

func TestHover(t *testing.T) {
	b := newBuilder()
	in := b.node(schema.OpOnHoverIn, map[string]ir.Value{"nodeIndex": ir.Int(1)})
	out := b.node(schema.OpOnHoverOut, nil)
	b.flow(in, schema.Out, b.log("in"), schema.In)
	l := b.log("out {c}")
	b.flow(out, schema.Out, l, schema.In).link(l, "c", out, "controllerIndex")
	f := newFixture(t, b.load(t))

	require.NoError(t, f.s.HoverIn(SelectArgs{Node: 2}))
	require.NoError(t, f.s.HoverIn(SelectArgs{Node: 1}))
	require.NoError(t, f.s.HoverOut(SelectArgs{Node: 1, Controller: 1}))
	assert.Equal(t, []string{"in", "out 1"}, f.logs.all())
}

func TestQuotaStopsFlowLoop(t *testing.T) {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	a := b.log("a")
	c := b.log("b")
	b.flow(start, schema.Out, a, schema.In).
		flow(a, schema.Out, c, schema.In).
		flow(c, schema.Out, a, schema.In)
	f := newFixture(t, b.load(t), WithMaxSteps(10))

	err := f.s.Start()
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.Len(t, f.logs.all(), 10)

	// The next activation gets a fresh quota.
	err = f.s.Start()
	assert.True(t, IsQuotaError(err))
	assert.Len(t, f.logs.all(), 20)
}

func TestQuotaCoversSendLoops(t *testing.T) {
	b := newBuilder()
	b.g.CustomEvents = []ir.CustomEvent{{ID: "loop"}}
	recv := b.node(schema.OpReceive, map[string]ir.Value{"event": ir.Int(0)})
	send := b.node(schema.OpSend, map[string]ir.Value{"event": ir.Int(0)})
	b.flow(recv, schema.Out, send, schema.In)
	f := newFixture(t, b.load(t), WithMaxSteps(50))

	err := f.s.Fire("loop", nil)
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
}

func TestUnhandledErrFlowIsTraced(t *testing.T) {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	set := b.node(schema.OpPointerSet, map[string]ir.Value{
		"pointer": ir.String("/nodes/0/translation"),
		"type":    ir.String(ir.SigFloat3),
	})
	b.flow(start, schema.Out, set, schema.In)
	f := newFixture(t, b.load(t))

	require.NoError(t, f.s.Start())
	errs := f.rec.Filter(TraceErrorFlow)
	require.Len(t, errs, 1)
	assert.Equal(t, set, errs[0].Node)
	assert.Equal(t, schema.Err, errs[0].Socket)
}

func TestTraceOrder(t *testing.T) {
	f := newFixture(t, compileYAML(t, counterYAML))
	require.NoError(t, f.s.Start())

	var kinds []TraceKind
	var last int64
	for _, ev := range f.rec.Events() {
		assert.Greater(t, ev.Seq, last)
		assert.Equal(t, "test-session", ev.Session)
		last = ev.Seq
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []TraceKind{
		TraceActivation, TraceFlow, TraceVariable, TraceFlow, TraceLog, TraceFlow,
	}, kinds)
}
