package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/roach88/ixgraph/internal/engine"
	"github.com/roach88/ixgraph/internal/ir"
	"github.com/roach88/ixgraph/internal/schema"
)

func newTestObserver(t *testing.T) (*MetricsObserver, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetricsObserver(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func total(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)
	var n int64
	for _, dp := range sum.DataPoints {
		n += dp.Value
	}
	return n
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "cancelled", outcome("delay cancelled"))
	assert.Equal(t, "failed", outcome("interpolate x failed"))
	assert.Equal(t, "completed", outcome("animation"))
}

func TestMetricsObserverCountsEvents(t *testing.T) {
	m, reader := newTestObserver(t)
	for _, ev := range []engine.TraceEvent{
		{Kind: engine.TraceActivation, Op: schema.OpOnStart},
		{Kind: engine.TraceFlow, Op: schema.OpOnStart, Socket: "out"},
		{Kind: engine.TraceFlow, Op: schema.OpSetDelay, Socket: "out"},
		{Kind: engine.TraceContinuationScheduled, Op: schema.OpSetDelay, Message: "delay"},
		{Kind: engine.TraceContinuationScheduled, Op: schema.OpSetDelay, Message: "delay"},
		{Kind: engine.TraceContinuationDone, Op: schema.OpSetDelay, Message: "delay cancelled"},
		{Kind: engine.TraceErrorFlow, Op: schema.OpPointerSet, Socket: "err"},
		{Kind: engine.TraceLog, Op: schema.OpLog, Message: "hi"},
		{Kind: engine.TraceVariable, Op: schema.OpVariableSet, Message: "x=1"},
	} {
		m.Observe(ev)
	}

	got := collect(t, reader)
	assert.Equal(t, int64(1), total(t, got["ixgraph.activations"]))
	assert.Equal(t, int64(2), total(t, got["ixgraph.flows"]))
	assert.Equal(t, int64(1), total(t, got["ixgraph.error_flows"]))
	assert.Equal(t, int64(1), total(t, got["ixgraph.logs"]))
	assert.Equal(t, int64(1), total(t, got["ixgraph.variable.writes"]))
	assert.Equal(t, int64(1), total(t, got["ixgraph.continuations.active"]))

	fin := got["ixgraph.continuations.finished"].Data.(metricdata.Sum[int64])
	require.Len(t, fin.DataPoints, 1)
	v, ok := fin.DataPoints[0].Attributes.Value(attribute.Key("outcome"))
	require.True(t, ok)
	assert.Equal(t, "cancelled", v.AsString())
}

func TestMetricsObserverOnSession(t *testing.T) {
	m, reader := newTestObserver(t)

	g := &ir.Graph{}
	start := g.AddNode(ir.NewNode(g.Declare(ir.Declaration{Op: schema.OpOnStart})))
	delay := g.AddNode(ir.NewNode(g.Declare(ir.Declaration{Op: schema.OpSetDelay})))
	g.Nodes[start].Flows[schema.Out] = ir.SocketRef{Node: delay, Socket: schema.In}
	g.Nodes[delay].Values["duration"] = ir.Lit(ir.Float(1))
	p, err := engine.Load(g, schema.Standard())
	require.NoError(t, err)

	mock := clock.NewMock()
	s := p.NewSession(engine.WithClock(mock), engine.WithObserver(m))
	require.NoError(t, s.Start())
	assert.Equal(t, int64(1), total(t, collect(t, reader)["ixgraph.continuations.active"]))

	mock.Add(time.Second)
	require.NoError(t, s.Tick())
	got := collect(t, reader)
	assert.Equal(t, int64(0), total(t, got["ixgraph.continuations.active"]))
	assert.Equal(t, int64(1), total(t, got["ixgraph.continuations.finished"]))
}
