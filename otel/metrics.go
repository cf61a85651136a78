package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/toolflow"
)

// MetricsHandler translates toolflow events into OpenTelemetry metrics.
// It records counters and histograms for executions, failures, timeouts,
// and plan durations.
type MetricsHandler struct {
	executions   metric.Int64Counter
	failures     metric.Int64Counter
	timeouts     metric.Int64Counter
	execDuration metric.Float64Histogram
	planDuration metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create instruments for recording engine metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	executions, err := meter.Int64Counter("toolflow.executions",
		metric.WithDescription("Number of tool executions"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("toolflow.failures",
		metric.WithDescription("Number of failed tool executions"),
	)
	if err != nil {
		return nil, err
	}

	timeouts, err := meter.Int64Counter("toolflow.timeouts",
		metric.WithDescription("Number of timed-out tool executions"),
	)
	if err != nil {
		return nil, err
	}

	execDuration, err := meter.Float64Histogram("toolflow.execution.duration",
		metric.WithDescription("Duration of tool execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	planDuration, err := meter.Float64Histogram("toolflow.plan.duration",
		metric.WithDescription("Duration of plan runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		executions:   executions,
		failures:     failures,
		timeouts:     timeouts,
		execDuration: execDuration,
		planDuration: planDuration,
	}, nil
}

// Handle processes an event and records the appropriate metrics.
// It implements toolflow.EventHandler semantics.
func (h *MetricsHandler) Handle(e toolflow.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("tool", e.ToolName),
	)

	switch e.Kind {
	case toolflow.EventExecutionComplete:
		h.executions.Add(ctx, 1, attrs)
		h.execDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
	case toolflow.EventExecutionError:
		h.executions.Add(ctx, 1, attrs)
		h.failures.Add(ctx, 1, attrs)
		h.execDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
	case toolflow.EventExecutionTimeout:
		h.executions.Add(ctx, 1, attrs)
		h.timeouts.Add(ctx, 1, attrs)
	case toolflow.EventPlanFinished:
		h.planDuration.Record(ctx, e.Elapsed.Seconds(),
			metric.WithAttributes(attribute.String("status", payloadString(e, "status", ""))))
	}
}
