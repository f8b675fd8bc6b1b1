package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ixgraph/internal/host"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

func (f *fixture) tickAfter(t *testing.T, d time.Duration) {
	t.Helper()
	f.clock.Add(d)
	require.NoError(t, f.s.Tick())
}

func delayGraph(t *testing.T) *Program {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	delay := b.node(schema.OpSetDelay, nil)
	b.lit(delay, "duration", ir.Float(1))
	b.flow(start, schema.Out, delay, schema.In)
	b.flow(delay, schema.Out, b.log("out"), schema.In)
	b.flow(delay, schema.Done, b.log("done"), schema.In)

	sel := b.node(schema.OpOnSelect, nil)
	b.flow(sel, schema.Out, delay, "cancel")
	return b.load(t)
}

func TestSetDelay(t *testing.T) {
	f := newFixture(t, delayGraph(t))

	require.NoError(t, f.s.Start())
	assert.Equal(t, []string{"out"}, f.logs.all())
	assert.Equal(t, 1, f.s.Pending())

	f.tickAfter(t, 500*time.Millisecond)
	assert.Equal(t, []string{"out"}, f.logs.all())

	f.tickAfter(t, 500*time.Millisecond)
	assert.Equal(t, []string{"out", "done"}, f.logs.all())
	assert.Zero(t, f.s.Pending())
}

func TestSetDelayCancel(t *testing.T) {
	f := newFixture(t, delayGraph(t))

	require.NoError(t, f.s.Start())
	require.NoError(t, f.s.Select(SelectArgs{Node: 0}))
	assert.Zero(t, f.s.Pending())

	f.tickAfter(t, 2*time.Second)
	assert.Equal(t, []string{"out"}, f.logs.all())
	assert.Equal(t, []string{"delay cancelled"}, f.rec.Messages(TraceContinuationDone))
}

func TestCancelDelayByIndex(t *testing.T) {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	delay := b.node(schema.OpSetDelay, nil)
	cancel := b.node(schema.OpCancelDelay, nil)
	b.lit(delay, "duration", ir.Float(1)).
		link(cancel, "delayIndex", delay, "lastDelayIndex").
		flow(start, schema.Out, delay, schema.In).
		flow(delay, schema.Out, cancel, schema.In).
		flow(delay, schema.Done, b.log("done"), schema.In)
	f := newFixture(t, b.load(t))

	require.NoError(t, f.s.Start())
	assert.Zero(t, f.s.Pending())
	f.tickAfter(t, 2*time.Second)
	assert.Empty(t, f.logs.all())
}

func TestSetDelayRejectsBadDuration(t *testing.T) {
	for _, d := range []float64{-1, math.NaN(), math.Inf(1)} {
		b := newBuilder()
		start := b.node(schema.OpOnStart, nil)
		delay := b.node(schema.OpSetDelay, nil)
		b.lit(delay, "duration", ir.Float(d)).
			flow(start, schema.Out, delay, schema.In).
			flow(delay, schema.Err, b.log("err"), schema.In)
		f := newFixture(t, b.load(t))

		require.NoError(t, f.s.Start())
		assert.Equal(t, []string{"err"}, f.logs.all(), "duration %v", d)
		assert.Zero(t, f.s.Pending())
	}
}

const interpolateYAML = `
variables:
  - {id: x, type: float, default: 0.0}
units:
  - {id: start, kind: OnStart}
  - id: move
    kind: InterpolateVariable
    config: {variable: x}
    literals: {value: 10.0, duration: 1.0}
  - {id: out, kind: Log, config: {message: "out {x}"}}
  - {id: done, kind: Log, config: {message: "done {x}"}}
control:
  - {from: {unit: start, pin: out}, to: {unit: move, pin: in}}
  - {from: {unit: move, pin: out}, to: {unit: out, pin: in}}
  - {from: {unit: move, pin: done}, to: {unit: done, pin: in}}
`

func TestVariableInterpolate(t *testing.T) {
	f := newFixture(t, compileYAML(t, interpolateYAML))

	require.NoError(t, f.s.Start())
	assert.Equal(t, []string{"out 0"}, f.logs.all(), "out fires before the first step")

	f.tickAfter(t, 500*time.Millisecond)
	v, _ := f.s.Variable("x")
	assert.InDelta(t, 5.0, float64(v.(ir.Float)), 1e-9)

	f.tickAfter(t, 500*time.Millisecond)
	v, _ = f.s.Variable("x")
	assert.Equal(t, ir.Float(10), v)
	assert.Equal(t, []string{"out 0", "done 10"}, f.logs.all())
	assert.Zero(t, f.s.Pending())
}

func TestVariableInterpolateReplacesRunning(t *testing.T) {
	b := newBuilder()
	x := b.variable("x", ir.SigFloat, ir.Float(0))
	start := b.node(schema.OpOnStart, nil)
	sel := b.node(schema.OpOnSelect, nil)
	first := b.node(schema.OpVariableInterpolate, map[string]ir.Value{"variable": ir.Int(x)})
	second := b.node(schema.OpVariableInterpolate, map[string]ir.Value{"variable": ir.Int(x)})
	b.lit(first, schema.Value, ir.Float(100)).lit(first, "duration", ir.Float(10)).
		lit(second, schema.Value, ir.Float(-1)).lit(second, "duration", ir.Float(0)).
		flow(start, schema.Out, first, schema.In).
		flow(sel, schema.Out, second, schema.In).
		flow(first, schema.Done, b.log("first done"), schema.In).
		flow(second, schema.Done, b.log("second done"), schema.In)
	f := newFixture(t, b.load(t))

	require.NoError(t, f.s.Start())
	require.NoError(t, f.s.Select(SelectArgs{Node: 1}))
	assert.Equal(t, 1, f.s.Pending())

	f.tickAfter(t, time.Second)
	v, _ := f.s.Variable("x")
	assert.Equal(t, ir.Float(-1), v)
	assert.Equal(t, []string{"second done"}, f.logs.all())
}

func TestVariableInterpolateRejectsBadInputs(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		p1       ir.Float2
	}{
		{"negative duration", -1, ir.Float2{0, 0}},
		{"infinite duration", math.Inf(1), ir.Float2{0, 0}},
		{"control point outside unit square", 1, ir.Float2{1.5, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder()
			x := b.variable("x", ir.SigFloat2, nil)
			start := b.node(schema.OpOnStart, nil)
			move := b.node(schema.OpVariableInterpolate, map[string]ir.Value{"variable": ir.Int(x)})
			b.lit(move, schema.Value, ir.Float2{1, 1}).
				lit(move, "duration", ir.Float(tt.duration)).
				lit(move, "p1", tt.p1).
				flow(start, schema.Out, move, schema.In).
				flow(move, schema.Out, b.log("out"), schema.In).
				flow(move, schema.Err, b.log("err"), schema.In)
			f := newFixture(t, b.load(t))

			require.NoError(t, f.s.Start())
			assert.Equal(t, []string{"err"}, f.logs.all())
			assert.Zero(t, f.s.Pending())
		})
	}
}

func pointerGraph(t *testing.T, op string, value ir.Value) *Program {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	n := b.node(op, map[string]ir.Value{
		"pointer": ir.String("/nodes/{nodeIndex}/translation"),
		"type":    ir.String(ir.SigFloat3),
	})
	b.lit(n, "nodeIndex", ir.Int(2)).
		lit(n, schema.Value, value).
		flow(start, schema.Out, n, schema.In).
		flow(n, schema.Out, b.log("out"), schema.In).
		flow(n, schema.Err, b.log("err"), schema.In)
	if op == schema.OpPointerInterpolate {
		b.lit(n, "duration", ir.Float(2))
		b.flow(n, schema.Done, b.log("done"), schema.In)
	}
	return b.load(t)
}

func TestPointerSet(t *testing.T) {
	t.Run("existing path", func(t *testing.T) {
		f := newFixture(t, pointerGraph(t, schema.OpPointerSet, ir.Float3{1, 2, 3}))
		f.state.Define("/nodes/2/translation", ir.Float3{}, false)

		require.NoError(t, f.s.Start())
		assert.Equal(t, []string{"out"}, f.logs.all())
		v, err := f.state.Get("/nodes/2/translation")
		require.NoError(t, err)
		assert.Equal(t, ir.Float3{1, 2, 3}, v)
	})

	t.Run("missing path fires err once", func(t *testing.T) {
		f := newFixture(t, pointerGraph(t, schema.OpPointerSet, ir.Float3{1, 2, 3}))

		require.NoError(t, f.s.Start())
		assert.Equal(t, []string{"err"}, f.logs.all())
	})

	t.Run("read-only path", func(t *testing.T) {
		f := newFixture(t, pointerGraph(t, schema.OpPointerSet, ir.Float3{1, 2, 3}))
		f.state.Define("/nodes/2/translation", ir.Float3{}, true)

		require.NoError(t, f.s.Start())
		assert.Equal(t, []string{"err"}, f.logs.all())
	})

	t.Run("type mismatch", func(t *testing.T) {
		f := newFixture(t, pointerGraph(t, schema.OpPointerSet, ir.Float3{1, 2, 3}))
		f.state.Define("/nodes/2/translation", ir.Float4{}, false)

		require.NoError(t, f.s.Start())
		assert.Equal(t, []string{"err"}, f.logs.all())
	})
}

func TestPointerInterpolate(t *testing.T) {
	f := newFixture(t, pointerGraph(t, schema.OpPointerInterpolate, ir.Float3{2, 4, 6}))
	f.state.Define("/nodes/2/translation", ir.Float3{}, false)

	require.NoError(t, f.s.Start())
	f.tickAfter(t, time.Second)
	v, _ := f.state.Get("/nodes/2/translation")
	assert.InDeltaSlice(t, []float64{1, 2, 3}, v.(ir.Float3)[:], 1e-9)

	f.tickAfter(t, time.Second)
	v, _ = f.state.Get("/nodes/2/translation")
	assert.Equal(t, ir.Float3{2, 4, 6}, v)
	assert.Equal(t, []string{"out", "done"}, f.logs.all())
}

func TestPointerGet(t *testing.T) {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	get := b.node(schema.OpPointerGet, map[string]ir.Value{
		"pointer": ir.String("/nodes/{i}/scale"),
		"type":    ir.String(ir.SigFloat3),
	})
	l := b.log("{v} {ok}")
	b.lit(get, "i", ir.Int(0)).
		link(l, "v", get, schema.Value).
		link(l, "ok", get, "isValid").
		flow(start, schema.Out, l, schema.In)
	p := b.load(t)

	f := newFixture(t, p)
	f.state.Define("/nodes/0/scale", ir.Float3{1, 1, 1}, true)
	require.NoError(t, f.s.Start())

	missing := newFixture(t, p)
	require.NoError(t, missing.s.Start())

	assert.Equal(t, []string{"(1, 1, 1) true"}, f.logs.all())
	assert.Equal(t, []string{"(0, 0, 0) false"}, missing.logs.all())
}

func animationGraph(t *testing.T, end float64) *Program {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	play := b.node(schema.OpAnimationStart, nil)
	stop := b.node(schema.OpAnimationStop, nil)
	sel := b.node(schema.OpOnSelect, nil)
	b.lit(play, "animation", ir.Int(0)).
		lit(play, "endTime", ir.Float(end)).
		lit(play, "speed", ir.Float(2)).
		lit(stop, "animation", ir.Int(0)).
		flow(start, schema.Out, play, schema.In).
		flow(sel, schema.Out, stop, schema.In).
		flow(play, schema.Err, b.log("err"), schema.In).
		flow(play, schema.Done, b.log("done"), schema.In)
	return b.load(t)
}

func TestAnimation(t *testing.T) {
	t.Run("done after length over speed", func(t *testing.T) {
		assets := host.NewMemoryAssets("walk")
		f := newFixture(t, animationGraph(t, 2), WithAssets(assets))

		require.NoError(t, f.s.Start())
		assert.True(t, assets.Get(0).Playing)

		f.tickAfter(t, 900*time.Millisecond)
		assert.Empty(t, f.logs.all())
		f.tickAfter(t, 100*time.Millisecond)
		assert.Equal(t, []string{"done"}, f.logs.all())
	})

	t.Run("infinite end never completes", func(t *testing.T) {
		f := newFixture(t, animationGraph(t, math.Inf(1)), WithAssets(host.NewMemoryAssets("idle")))

		require.NoError(t, f.s.Start())
		assert.Zero(t, f.s.Pending())
	})

	t.Run("stop cancels completion", func(t *testing.T) {
		assets := host.NewMemoryAssets("walk")
		f := newFixture(t, animationGraph(t, 2), WithAssets(assets))

		require.NoError(t, f.s.Start())
		require.NoError(t, f.s.Select(SelectArgs{}))
		assert.False(t, assets.Get(0).Playing)

		f.tickAfter(t, 5*time.Second)
		assert.Empty(t, f.logs.all())
	})

	t.Run("missing asset fires err", func(t *testing.T) {
		f := newFixture(t, animationGraph(t, 2))

		require.NoError(t, f.s.Start())
		assert.Equal(t, []string{"err"}, f.logs.all())
	})
}

func TestTickOutputs(t *testing.T) {
	b := newBuilder()
	start := b.node(schema.OpOnStart, nil)
	tick := b.node(schema.OpOnTick, nil)
	early := b.log("{t}")
	l := b.log("{t} {dt}")
	b.link(early, "t", tick, "timeSinceStart").
		link(l, "t", tick, "timeSinceStart").
		link(l, "dt", tick, "timeSinceLastTick").
		flow(start, schema.Out, early, schema.In).
		flow(tick, schema.Out, l, schema.In)
	f := newFixture(t, b.load(t))

	require.NoError(t, f.s.Start())
	f.tickAfter(t, 500*time.Millisecond)
	f.tickAfter(t, 250*time.Millisecond)

	assert.Equal(t, []string{"NaN", "0.5 0.5", "0.75 0.25"}, f.logs.all())
}

func TestCubicBezier(t *testing.T) {
	linear := func(x float64) float64 { return cubicBezier(ir.Float2{0, 0}, ir.Float2{1, 1}, x) }
	easeInOut := func(x float64) float64 { return cubicBezier(ir.Float2{0.42, 0}, ir.Float2{0.58, 1}, x) }

	for _, x := range []float64{0, 0.1, 0.5, 0.9, 1} {
		assert.Equal(t, x, linear(x))
	}
	assert.InDelta(t, 0.5, easeInOut(0.5), 1e-9)
	assert.Less(t, easeInOut(0.25), 0.25)
	assert.Greater(t, easeInOut(0.75), 0.75)

	prev := 0.0
	for k := 1; k <= 100; k++ {
		y := easeInOut(float64(k) / 100)
		assert.GreaterOrEqual(t, y, prev)
		prev = y
	}
}

func TestSlerp(t *testing.T) {
	identity := []float64{0, 0, 0, 1}
	quarter := []float64{0, 0, math.Sin(math.Pi / 4), math.Cos(math.Pi / 4)}

	got := slerp(identity, quarter, 0.5)
	want := []float64{0, 0, math.Sin(math.Pi / 8), math.Cos(math.Pi / 8)}
	assert.InDeltaSlice(t, want, got, 1e-9)

	// The shorter arc is taken when the quaternions point apart.
	neg := []float64{0, 0, -quarter[2], -quarter[3]}
	assert.InDeltaSlice(t, want, slerp(identity, neg, 0.5), 1e-9)
}
