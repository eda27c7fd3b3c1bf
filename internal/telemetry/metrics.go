package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by devmem spans and metrics.
var (
	AttrAction       = attribute.Key("devmem.permission.action")
	AttrResourceType = attribute.Key("devmem.resource.type")
	AttrGranted      = attribute.Key("devmem.permission.granted")
	AttrTool         = attribute.Key("devmem.tool.name")
	AttrFragments    = attribute.Key("devmem.recall.fragments")
)

// Metrics holds the engine's instruments.
type Metrics struct {
	RecallCalls         metric.Int64Counter
	RecallDuration      metric.Float64Histogram
	PermissionDecisions metric.Int64Counter
	AuditEntries        metric.Int64Counter
	ToolCalls           metric.Int64Counter
	ToolErrors          metric.Int64Counter
}

// NewMetrics creates all instruments from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RecallCalls, err = meter.Int64Counter("devmem.recall.calls",
		metric.WithDescription("Recall invocations"),
	)
	if err != nil {
		return nil, err
	}

	m.RecallDuration, err = meter.Float64Histogram("devmem.recall.duration",
		metric.WithDescription("Recall latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.PermissionDecisions, err = meter.Int64Counter("devmem.permission.decisions",
		metric.WithDescription("Permission checks by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.AuditEntries, err = meter.Int64Counter("devmem.audit.entries",
		metric.WithDescription("Audit log entries appended"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("devmem.tool.calls",
		metric.WithDescription("MCP tool invocations"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolErrors, err = meter.Int64Counter("devmem.tool.errors",
		metric.WithDescription("MCP tool invocations that returned an error result"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NoopMetrics returns instruments backed by a no-op meter.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(Noop().Meter) // the no-op meter never fails
	return m
}

// StartSpan starts an internal span with attrs.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
