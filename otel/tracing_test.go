package otel_test

import (
	"testing"
	"time"

	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petal-labs/toolflow"
	flowotel "github.com/petal-labs/toolflow/otel"
)

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

func TestTracingHandler_ExecutionSpanLifecycle(t *testing.T) {
	exporter, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()

	h.Handle(toolflow.Event{
		Kind:      toolflow.EventExecutionStart,
		ContextID: "ctx-1",
		ToolName:  "webFetch",
		Time:      now,
	})

	sc := h.ActiveSpanContext("ctx-1")
	if !sc.IsValid() {
		t.Fatal("expected valid span context after execution start")
	}

	h.Handle(toolflow.Event{
		Kind:      toolflow.EventParameterValidation,
		ContextID: "ctx-1",
		ToolName:  "webFetch",
		Time:      now.Add(10 * time.Millisecond),
	})

	h.Handle(toolflow.Event{
		Kind:      toolflow.EventExecutionComplete,
		ContextID: "ctx-1",
		ToolName:  "webFetch",
		Time:      now.Add(100 * time.Millisecond),
		Elapsed:   100 * time.Millisecond,
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}

	span := spans[0]
	if span.Name != "execute:webFetch" {
		t.Errorf("got span name %q, want execute:webFetch", span.Name)
	}
	if span.Status.Code != otelcodes.Ok {
		t.Errorf("got status %v, want Ok", span.Status.Code)
	}
	if len(span.Events) != 1 || span.Events[0].Name != string(toolflow.EventParameterValidation) {
		t.Errorf("got span events %v, want one parameter_validation event", span.Events)
	}

	if h.ActiveSpanContext("ctx-1").IsValid() {
		t.Error("span context should be released after completion")
	}
}

func TestTracingHandler_ErrorMarksSpanFailed(t *testing.T) {
	exporter, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()

	h.Handle(toolflow.Event{
		Kind:      toolflow.EventExecutionStart,
		ContextID: "ctx-1",
		ToolName:  "webFetch",
		Time:      now,
	})
	h.Handle(toolflow.Event{
		Kind:      toolflow.EventExecutionError,
		ContextID: "ctx-1",
		ToolName:  "webFetch",
		Time:      now.Add(time.Millisecond),
		Payload:   map[string]any{"error": "connection refused"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != otelcodes.Error {
		t.Errorf("got status %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "connection refused" {
		t.Errorf("got status description %q, want connection refused", spans[0].Status.Description)
	}
}

func TestTracingHandler_TimeoutSetsAttribute(t *testing.T) {
	exporter, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()

	h.Handle(toolflow.Event{
		Kind:      toolflow.EventExecutionStart,
		ContextID: "ctx-1",
		ToolName:  "slowTool",
		Time:      now,
	})
	h.Handle(toolflow.Event{
		Kind:      toolflow.EventExecutionTimeout,
		ContextID: "ctx-1",
		ToolName:  "slowTool",
		Time:      now.Add(time.Second),
		Elapsed:   time.Second,
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != otelcodes.Error {
		t.Errorf("got status %v, want Error", spans[0].Status.Code)
	}

	found := false
	for _, attr := range spans[0].Attributes {
		if string(attr.Key) == "toolflow.timeout" && attr.Value.AsBool() {
			found = true
		}
	}
	if !found {
		t.Error("expected toolflow.timeout attribute on timed-out span")
	}
}

func TestTracingHandler_PlanSpanParentsExecutions(t *testing.T) {
	exporter, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()

	h.Handle(toolflow.Event{
		Kind:      toolflow.EventPlanStarted,
		ContextID: "plan-1",
		Time:      now,
	})
	h.Handle(toolflow.Event{
		Kind:      toolflow.EventExecutionStart,
		ContextID: "ctx-1",
		ToolName:  "webFetch",
		Time:      now,
		Payload:   map[string]any{"parent": "plan-1"},
	})
	h.Handle(toolflow.Event{
		Kind:      toolflow.EventExecutionComplete,
		ContextID: "ctx-1",
		ToolName:  "webFetch",
		Time:      now.Add(50 * time.Millisecond),
	})
	h.Handle(toolflow.Event{
		Kind:      toolflow.EventPlanFinished,
		ContextID: "plan-1",
		Time:      now.Add(60 * time.Millisecond),
		Elapsed:   60 * time.Millisecond,
		Payload:   map[string]any{"status": "completed"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}

	var execSpan, planSpan tracetest.SpanStub
	for _, s := range spans {
		switch s.Name {
		case "execute:webFetch":
			execSpan = s
		case "plan:plan-1":
			planSpan = s
		}
	}
	if planSpan.Name == "" {
		t.Fatal("plan span not exported")
	}
	if execSpan.Parent.SpanID() != planSpan.SpanContext.SpanID() {
		t.Error("execution span should be parented under the plan span")
	}
	if planSpan.Status.Code != otelcodes.Ok {
		t.Errorf("got plan status %v, want Ok", planSpan.Status.Code)
	}
}

func TestTracingHandler_FailedPlanStatus(t *testing.T) {
	exporter, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	now := time.Now()

	h.Handle(toolflow.Event{
		Kind:      toolflow.EventPlanStarted,
		ContextID: "plan-1",
		Time:      now,
	})
	h.Handle(toolflow.Event{
		Kind:      toolflow.EventPlanFinished,
		ContextID: "plan-1",
		Time:      now.Add(time.Millisecond),
		Payload:   map[string]any{"status": "failed"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != otelcodes.Error {
		t.Errorf("got status %v, want Error", spans[0].Status.Code)
	}
}

func TestTracingHandler_IgnoresUnknownContext(t *testing.T) {
	exporter, tp := newTestTracer()
	h := flowotel.NewTracingHandler(tp.Tracer("test"))

	// Ending an execution that never started must not panic or export.
	h.Handle(toolflow.Event{
		Kind:      toolflow.EventExecutionComplete,
		ContextID: "ctx-unknown",
		Time:      time.Now(),
	})

	if got := len(exporter.GetSpans()); got != 0 {
		t.Errorf("got %d spans, want 0", got)
	}
	if h.ActiveSpanContext("ctx-unknown").IsValid() {
		t.Error("unknown context should have no span context")
	}
}
