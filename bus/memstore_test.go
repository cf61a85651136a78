package bus

import (
	"context"
	"testing"

	"github.com/petal-labs/toolflow"
)

func TestMemEventStore_AppendList(t *testing.T) {
	store := NewMemEventStore()
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		e := toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-1").WithSeq(i)
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	events, err := store.List(ctx, "ctx-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d: got Seq %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestMemEventStore_ListAfterSeq(t *testing.T) {
	store := NewMemEventStore()
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		e := toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-1").WithSeq(i)
		_ = store.Append(ctx, e)
	}

	events, err := store.List(ctx, "ctx-1", 3, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Seq != 4 || events[1].Seq != 5 {
		t.Errorf("got Seqs [%d %d], want [4 5]", events[0].Seq, events[1].Seq)
	}
}

func TestMemEventStore_ListLimit(t *testing.T) {
	store := NewMemEventStore()
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		e := toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-1").WithSeq(i)
		_ = store.Append(ctx, e)
	}

	events, err := store.List(ctx, "ctx-1", 0, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Seq != 1 || events[1].Seq != 2 {
		t.Errorf("got Seqs [%d %d], want [1 2]", events[0].Seq, events[1].Seq)
	}
}

func TestMemEventStore_AfterSeqIsExclusiveBound(t *testing.T) {
	store := NewMemEventStore()
	ctx := context.Background()

	// An unstamped event (Seq 0) is never replayable; both stores treat
	// afterSeq as a strict lower bound.
	_ = store.Append(ctx, toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-1"))
	_ = store.Append(ctx, toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-1").WithSeq(1))

	events, err := store.List(ctx, "ctx-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Seq != 1 {
		t.Errorf("got Seq %d, want 1", events[0].Seq)
	}
}

func TestMemEventStore_ContextIsolation(t *testing.T) {
	store := NewMemEventStore()
	ctx := context.Background()

	_ = store.Append(ctx, toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-1").WithSeq(1))
	_ = store.Append(ctx, toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-2").WithSeq(1))

	events, err := store.List(ctx, "ctx-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events for ctx-1, want 1", len(events))
	}
}

func TestMemEventStore_LatestSeq(t *testing.T) {
	store := NewMemEventStore()
	ctx := context.Background()

	seq, err := store.LatestSeq(ctx, "ctx-1")
	if err != nil {
		t.Fatalf("LatestSeq: %v", err)
	}
	if seq != 0 {
		t.Errorf("got Seq %d for empty context, want 0", seq)
	}

	for i := uint64(1); i <= 3; i++ {
		_ = store.Append(ctx, toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-1").WithSeq(i))
	}

	seq, err = store.LatestSeq(ctx, "ctx-1")
	if err != nil {
		t.Fatalf("LatestSeq: %v", err)
	}
	if seq != 3 {
		t.Errorf("got Seq %d, want 3", seq)
	}
}

func TestMemEventStore_ListUnknownContext(t *testing.T) {
	store := NewMemEventStore()

	events, err := store.List(context.Background(), "missing", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}
