package bus

import (
	"context"
	"log/slog"
	"testing"

	"github.com/petal-labs/toolflow"
)

func TestStoreSubscriber_PersistsEvents(t *testing.T) {
	store := newTestStore(t)
	sub := NewStoreSubscriber(store, slog.Default())

	for i := 1; i <= 3; i++ {
		e := toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-1")
		e.Seq = uint64(i)
		sub.Handle(e)
	}

	events, err := store.List(context.Background(), "ctx-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
}

func TestStoreSubscriber_NilLoggerDefaults(t *testing.T) {
	store := newTestStore(t)
	sub := NewStoreSubscriber(store, nil)

	e := toolflow.NewEvent(toolflow.EventExecutionComplete, "ctx-1")
	e.Seq = 1
	sub.Handle(e)

	events, err := store.List(context.Background(), "ctx-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
}

func TestStoreSubscriber_PlanEventsReplayable(t *testing.T) {
	store := newTestStore(t)
	sub := NewStoreSubscriber(store, slog.Default())

	catalog := toolflow.NewCatalog()
	tool := toolflow.NewFuncTool("greet", func(ctx context.Context, req *toolflow.Request) (*toolflow.Result, error) {
		return toolflow.NewResult(req), nil
	})
	if err := catalog.Register(tool); err != nil {
		t.Fatalf("Register: %v", err)
	}
	executor := toolflow.NewExecutor(toolflow.ExecutorConfig{Catalog: catalog})
	runner := toolflow.NewPlanRunner(executor, catalog)

	report, err := runner.RunPlan(context.Background(),
		[]toolflow.PlanEntry{{Name: "a", ToolName: "greet"}},
		toolflow.PlanOptions{EventHandler: sub.Handle},
	)
	if err != nil {
		t.Fatalf("RunPlan: %v", err)
	}

	// The default replay query (afterSeq 0) must return the plan's own
	// lifecycle events, not just per-execution ones.
	events, err := store.List(context.Background(), report.PlanID, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d plan events for %s, want 2", len(events), report.PlanID)
	}
	if events[0].Kind != toolflow.EventPlanStarted || events[0].Seq != 1 {
		t.Errorf("got first event %s seq %d, want plan_started seq 1", events[0].Kind, events[0].Seq)
	}
	if events[1].Kind != toolflow.EventPlanFinished || events[1].Seq != 2 {
		t.Errorf("got last event %s seq %d, want plan_finished seq 2", events[1].Kind, events[1].Seq)
	}
}

func TestStoreSubscriber_HandleContinuesOnError(t *testing.T) {
	store := newTestStore(t)
	_ = store.Close()

	// Handle must log and return, not panic, when the store is closed.
	sub := NewStoreSubscriber(store, slog.Default())
	e := toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-1")
	e.Seq = 1
	sub.Handle(e)
}

func TestHandler_PublishesToBus(t *testing.T) {
	b := NewMemBus(MemBusConfig{})
	defer b.Close()

	sub := b.Subscribe("ctx-1")
	defer sub.Close()

	h := Handler(b)
	h(toolflow.NewEvent(toolflow.EventExecutionStart, "ctx-1"))

	select {
	case e := <-sub.Events():
		if e.Kind != toolflow.EventExecutionStart {
			t.Errorf("got kind %v, want %v", e.Kind, toolflow.EventExecutionStart)
		}
	default:
		t.Fatal("expected a buffered event")
	}
}
