// Package telemetry turns session trace events into OpenTelemetry
// metrics.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/ixgraph/internal/engine"
)

// ScopeName is the instrumentation scope of the meter.
const ScopeName = "github.com/roach88/ixgraph"

// MetricsObserver records counters for the trace events of any number of
// sessions. It implements engine.Observer.
type MetricsObserver struct {
	activations   metric.Int64Counter
	flows         metric.Int64Counter
	errorFlows    metric.Int64Counter
	logs          metric.Int64Counter
	variableSets  metric.Int64Counter
	continuations metric.Int64UpDownCounter
	finished      metric.Int64Counter
}

// NewMetricsObserver creates the instruments on meter.
func NewMetricsObserver(meter metric.Meter) (*MetricsObserver, error) {
	var (
		m   MetricsObserver
		err error
	)
	if m.activations, err = meter.Int64Counter("ixgraph.activations",
		metric.WithDescription("Event node activations"),
	); err != nil {
		return nil, err
	}
	if m.flows, err = meter.Int64Counter("ixgraph.flows",
		metric.WithDescription("Flow sockets fired"),
	); err != nil {
		return nil, err
	}
	if m.errorFlows, err = meter.Int64Counter("ixgraph.error_flows",
		metric.WithDescription("Operational node failures"),
	); err != nil {
		return nil, err
	}
	if m.logs, err = meter.Int64Counter("ixgraph.logs",
		metric.WithDescription("Messages written by debug/log nodes"),
	); err != nil {
		return nil, err
	}
	if m.variableSets, err = meter.Int64Counter("ixgraph.variable.writes",
		metric.WithDescription("Variable writes"),
	); err != nil {
		return nil, err
	}
	if m.continuations, err = meter.Int64UpDownCounter("ixgraph.continuations.active",
		metric.WithDescription("Scheduled continuations not yet finished"),
	); err != nil {
		return nil, err
	}
	if m.finished, err = meter.Int64Counter("ixgraph.continuations.finished",
		metric.WithDescription("Continuations that left the table, by outcome"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewGlobalMetricsObserver uses the global meter provider.
func NewGlobalMetricsObserver() (*MetricsObserver, error) {
	return NewMetricsObserver(otel.GetMeterProvider().Meter(ScopeName))
}

func (m *MetricsObserver) Observe(ev engine.TraceEvent) {
	ctx := context.Background()
	op := metric.WithAttributes(attribute.String("op", ev.Op))
	switch ev.Kind {
	case engine.TraceActivation:
		m.activations.Add(ctx, 1, op)
	case engine.TraceFlow:
		m.flows.Add(ctx, 1, op)
	case engine.TraceErrorFlow:
		m.errorFlows.Add(ctx, 1, op)
	case engine.TraceLog:
		m.logs.Add(ctx, 1)
	case engine.TraceVariable:
		m.variableSets.Add(ctx, 1)
	case engine.TraceContinuationScheduled:
		m.continuations.Add(ctx, 1, op)
	case engine.TraceContinuationDone:
		m.continuations.Add(ctx, -1, op)
		m.finished.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", ev.Op),
			attribute.String("outcome", outcome(ev.Message)),
		))
	}
}

// outcome classifies a continuation_done message.
func outcome(msg string) string {
	switch {
	case strings.HasSuffix(msg, " cancelled"):
		return "cancelled"
	case strings.HasSuffix(msg, " failed"):
		return "failed"
	}
	return "completed"
}
