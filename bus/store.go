package bus

import (
	"context"

	"github.com/petal-labs/toolflow"
)

// EventStore persists events for replay.
type EventStore interface {
	// Append stores an event.
	Append(ctx context.Context, event toolflow.Event) error

	// List returns events for an execution context, optionally filtered.
	// afterSeq: return events with Seq > afterSeq (0 means all)
	// limit: max events to return (0 means no limit)
	List(ctx context.Context, contextID string, afterSeq uint64, limit int) ([]toolflow.Event, error)

	// LatestSeq returns the highest Seq for a context (0 if no events).
	LatestSeq(ctx context.Context, contextID string) (uint64, error)
}
