// Package otel provides OpenTelemetry integration for toolflow events.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/toolflow"
)

// TracingHandler translates toolflow events into OpenTelemetry spans.
// It maintains maps of active plan and execution spans, creating and
// ending them based on event kind.
type TracingHandler struct {
	tracer trace.Tracer

	mu        sync.RWMutex
	planSpans map[string]trace.Span       // planID -> span
	planCtxs  map[string]context.Context  // planID -> context (for child spans)
	execSpans map[string]trace.Span       // contextID -> span
}

// NewTracingHandler creates a TracingHandler that uses the given tracer
// to create spans from engine events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:    tracer,
		planSpans: make(map[string]trace.Span),
		planCtxs:  make(map[string]context.Context),
		execSpans: make(map[string]trace.Span),
	}
}

// Handle processes an event and creates or ends spans accordingly.
// It implements toolflow.EventHandler semantics.
func (h *TracingHandler) Handle(e toolflow.Event) {
	switch e.Kind {
	case toolflow.EventPlanStarted:
		h.handlePlanStarted(e)
	case toolflow.EventExecutionStart:
		h.handleExecutionStart(e)
	case toolflow.EventParameterValidation, toolflow.EventResultProduced:
		h.handlePhaseEvent(e)
	case toolflow.EventExecutionComplete:
		h.handleExecutionEnd(e, "")
	case toolflow.EventExecutionError:
		h.handleExecutionEnd(e, payloadString(e, "error", "execution failed"))
	case toolflow.EventExecutionTimeout:
		h.handleExecutionEnd(e, "execution timed out")
	case toolflow.EventPlanFinished:
		h.handlePlanFinished(e)
	}
}

// handlePlanStarted creates a root span for the plan run.
func (h *TracingHandler) handlePlanStarted(e toolflow.Event) {
	ctx, span := h.tracer.Start(context.Background(), "plan:"+e.ContextID,
		trace.WithAttributes(
			attribute.String("toolflow.plan_id", e.ContextID),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.planSpans[e.ContextID] = span
	h.planCtxs[e.ContextID] = ctx
	h.mu.Unlock()
}

// handleExecutionStart creates an execution span, parented under the plan
// span when the event names one.
func (h *TracingHandler) handleExecutionStart(e toolflow.Event) {
	parentCtx := context.Background()
	if planID := payloadString(e, "parent", ""); planID != "" {
		h.mu.RLock()
		if ctx, ok := h.planCtxs[planID]; ok {
			parentCtx = ctx
		}
		h.mu.RUnlock()
	}

	_, span := h.tracer.Start(parentCtx, "execute:"+e.ToolName,
		trace.WithAttributes(
			attribute.String("toolflow.context_id", e.ContextID),
			attribute.String("toolflow.tool", e.ToolName),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.execSpans[e.ContextID] = span
	h.mu.Unlock()
}

// handlePhaseEvent adds a span event for intermediate lifecycle phases.
func (h *TracingHandler) handlePhaseEvent(e toolflow.Event) {
	h.mu.RLock()
	span, ok := h.execSpans[e.ContextID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	span.AddEvent(string(e.Kind),
		trace.WithTimestamp(e.Time),
		trace.WithAttributes(attribute.String("toolflow.event_kind", string(e.Kind))),
	)
}

// handleExecutionEnd ends the execution span; a non-empty errMsg marks it
// as failed.
func (h *TracingHandler) handleExecutionEnd(e toolflow.Event, errMsg string) {
	h.mu.Lock()
	span, ok := h.execSpans[e.ContextID]
	if ok {
		delete(h.execSpans, e.ContextID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	span.SetAttributes(attribute.String("toolflow.duration", e.Elapsed.String()))
	if e.Kind == toolflow.EventExecutionTimeout {
		span.SetAttributes(attribute.Bool("toolflow.timeout", true))
	}

	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(spanError(errMsg), trace.WithTimestamp(e.Time))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Time))
}

// handlePlanFinished ends the root plan span.
func (h *TracingHandler) handlePlanFinished(e toolflow.Event) {
	h.mu.Lock()
	span, ok := h.planSpans[e.ContextID]
	if ok {
		delete(h.planSpans, e.ContextID)
		delete(h.planCtxs, e.ContextID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	status := payloadString(e, "status", "")
	span.SetAttributes(
		attribute.String("toolflow.duration", e.Elapsed.String()),
		attribute.String("toolflow.status", status),
	)
	if status == "failed" {
		span.SetStatus(codes.Error, "plan failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(e.Time))
}

// ActiveSpanContext returns the SpanContext for the active execution span.
// Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveSpanContext(contextID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.execSpans[contextID]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

func payloadString(e toolflow.Event, key, fallback string) string {
	if v, ok := e.Payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// spanError is a simple error type for recording span errors.
type spanError string

func (e spanError) Error() string { return string(e) }
