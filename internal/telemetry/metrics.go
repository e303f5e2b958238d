package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by spans and metrics.
var (
	AttrCycleID = attribute.Key("opscore.cycle.id")
	AttrEntity  = attribute.Key("opscore.entity")
	AttrIssue   = attribute.Key("opscore.issue")
	AttrGate    = attribute.Key("opscore.gate")
	AttrOutcome = attribute.Key("opscore.outcome")
	AttrProfile = attribute.Key("opscore.ranking.profile")
	AttrHorizon = attribute.Key("opscore.ranking.horizon")
)

// Metrics holds the cycle instruments.
type Metrics struct {
	RowsNormalized    metric.Int64Counter
	RowsSkipped       metric.Int64Counter
	QueueItemsCreated metric.Int64Counter
	QueueItemsPurged  metric.Int64Counter
	GateFailures      metric.Int64Counter
	CycleDuration     metric.Float64Histogram
}

// NewMetrics creates every instrument from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RowsNormalized, err = meter.Int64Counter("opscore.normalize.rows",
		metric.WithDescription("Derived rows rewritten by the normalizer"),
	)
	if err != nil {
		return nil, err
	}

	m.RowsSkipped, err = meter.Int64Counter("opscore.normalize.skipped",
		metric.WithDescription("Malformed rows skipped by the normalizer"),
	)
	if err != nil {
		return nil, err
	}

	m.QueueItemsCreated, err = meter.Int64Counter("opscore.queue.created",
		metric.WithDescription("Resolution items created"),
	)
	if err != nil {
		return nil, err
	}

	m.QueueItemsPurged, err = meter.Int64Counter("opscore.queue.purged",
		metric.WithDescription("Resolved items removed by retention"),
	)
	if err != nil {
		return nil, err
	}

	m.GateFailures, err = meter.Int64Counter("opscore.gates.failed",
		metric.WithDescription("Gates that did not pass"),
	)
	if err != nil {
		return nil, err
	}

	m.CycleDuration, err = meter.Float64Histogram("opscore.cycle.duration",
		metric.WithDescription("Cycle duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// StartSpan starts an internal span.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
