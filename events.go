package toolflow

import (
	"time"
)

// EventKind identifies the type of event emitted by the engine.
type EventKind string

const (
	// EventExecutionStart is emitted when an invocation begins.
	EventExecutionStart EventKind = "execution_start"

	// EventParameterValidation is emitted after the validation phase,
	// whether or not the request was valid.
	EventParameterValidation EventKind = "parameter_validation"

	// EventResultProduced is emitted when the tool's unit of work
	// returns a result, before result transformation.
	EventResultProduced EventKind = "result_produced"

	// EventExecutionComplete is emitted when an invocation finishes
	// successfully.
	EventExecutionComplete EventKind = "execution_complete"

	// EventExecutionError is emitted when an invocation fails.
	EventExecutionError EventKind = "execution_error"

	// EventExecutionTimeout is emitted when an invocation exceeds its
	// time budget and is abandoned.
	EventExecutionTimeout EventKind = "execution_timeout"

	// EventPlanStarted is emitted when a plan run begins.
	EventPlanStarted EventKind = "plan_started"

	// EventPlanWarning is emitted for plan-level diagnostics, such as a
	// dependency cycle degraded to serial phases.
	EventPlanWarning EventKind = "plan_warning"

	// EventPlanFinished is emitted when a plan run completes.
	EventPlanFinished EventKind = "plan_finished"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured, streamable record of what happened during
// execution. Events should be kept small; large data belongs in the
// result payloads, not in event payloads.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// ContextID identifies the execution context (or plan) that
	// produced this event.
	ContextID string

	// ToolName is the tool involved (empty for plan-level events).
	ToolName string

	// Time is when the event occurred.
	Time time.Time

	// Seq is a per-context monotonic sequence number used by event
	// stores for replay ordering.
	Seq uint64

	// Elapsed is the duration since the invocation (or plan) started.
	Elapsed time.Duration

	// Payload contains event-specific data.
	Payload map[string]any
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind, contextID string) Event {
	return Event{
		Kind:      kind,
		ContextID: contextID,
		Time:      time.Now(),
		Payload:   make(map[string]any),
	}
}

// WithTool sets the tool name on the event.
func (e Event) WithTool(name string) Event {
	e.ToolName = name
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithSeq sets the sequence number on the event.
func (e Event) WithSeq(seq uint64) Event {
	e.Seq = seq
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// EventEmitter is a function type for emitting events.
type EventEmitter func(Event)

// EventHandler is a function type for handling events.
// Implementations can log, store, or forward events as needed.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// The channel should have sufficient buffer to avoid blocking.
// Events are dropped if the channel is full.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full
		}
	}
}
