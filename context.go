package toolflow

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecState is the lifecycle state of one invocation.
type ExecState string

const (
	StateCreated            ExecState = "created"
	StateValidating         ExecState = "validating"
	StateInvalid            ExecState = "invalid"
	StateTransformingParams ExecState = "transforming_params"
	StateExecuting          ExecState = "executing"
	StateTransformingResult ExecState = "transforming_result"
	StateComplete           ExecState = "complete"
	StateError              ExecState = "error"
	StateTimeout            ExecState = "timeout"
)

// HistoryPhase tags a history entry with the lifecycle phase that produced it.
type HistoryPhase string

const (
	HistoryStart           HistoryPhase = "start"
	HistoryValidation      HistoryPhase = "validation"
	HistoryParamTransform  HistoryPhase = "param_transform"
	HistoryExecute         HistoryPhase = "execute"
	HistoryResultTransform HistoryPhase = "result_transform"
	HistoryError           HistoryPhase = "error"
	HistoryTimeout         HistoryPhase = "timeout"
	HistoryComplete        HistoryPhase = "complete"
)

// HistoryEntry is one append-only record in an invocation's history log.
// Entries are never mutated or removed once appended.
type HistoryEntry struct {
	Phase    HistoryPhase
	Time     time.Time
	Duration time.Duration
	Message  string
	Details  map[string]any
}

// ExecutionContext tracks one invocation's identity, state, and history.
// It is owned by a single Executor run; the engine keeps no reference to
// it after the run finishes, and a late result from an abandoned tool is
// discarded once the context is finalized.
type ExecutionContext struct {
	// ID uniquely identifies this invocation.
	ID string

	// ParentID is set for nested invocations (a tool executing tools).
	ParentID string

	// ToolName is the tool being invoked.
	ToolName string

	// Started is when the invocation began.
	Started time.Time

	// Request is the request driving this invocation. The parameter
	// transform pipeline may replace it before execution.
	Request *Request

	mu           sync.Mutex
	state        ExecState
	bag          map[string]any
	history      []HistoryEntry
	trackHistory bool
	finalized    bool
}

// newExecutionContext creates a context for one Executor run.
func newExecutionContext(toolName, parentID string, req *Request, trackHistory bool) *ExecutionContext {
	return &ExecutionContext{
		ID:           uuid.NewString(),
		ParentID:     parentID,
		ToolName:     toolName,
		Started:      time.Now(),
		Request:      req,
		state:        StateCreated,
		bag:          make(map[string]any),
		trackHistory: trackHistory,
	}
}

// State returns the current lifecycle state.
func (ec *ExecutionContext) State() ExecState {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.state
}

func (ec *ExecutionContext) setState(s ExecState) {
	ec.mu.Lock()
	ec.state = s
	ec.mu.Unlock()
}

// Set stores a value in the context's mutable state bag.
func (ec *ExecutionContext) Set(key string, value any) {
	ec.mu.Lock()
	ec.bag[key] = value
	ec.mu.Unlock()
}

// Get retrieves a value from the state bag.
func (ec *ExecutionContext) Get(key string) (any, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	v, ok := ec.bag[key]
	return v, ok
}

// Cancel marks the context as cancelled in the state bag. This is
// advisory: it does not interrupt an in-flight unit of work. Cooperative
// tools can check Cancelled (or their ctx) and stop early.
func (ec *ExecutionContext) Cancel() {
	ec.Set("cancelled", true)
}

// Cancelled reports whether the context carries the advisory cancel flag.
func (ec *ExecutionContext) Cancelled() bool {
	v, ok := ec.Get("cancelled")
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// appendHistory records a history entry. Entries are appended in the
// order the lifecycle phases produce them; no-op when tracking is off.
func (ec *ExecutionContext) appendHistory(e HistoryEntry) {
	if !ec.trackHistory {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	ec.mu.Lock()
	ec.history = append(ec.history, e)
	ec.mu.Unlock()
}

// History returns a copy of the history log.
func (ec *ExecutionContext) History() []HistoryEntry {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]HistoryEntry, len(ec.history))
	copy(out, ec.history)
	return out
}

// finalize marks the run as finished. A timed-out tool that resolves
// afterwards finds the context finalized and its result is dropped.
func (ec *ExecutionContext) finalize() {
	ec.mu.Lock()
	ec.finalized = true
	ec.mu.Unlock()
}

// Finalized reports whether the owning run has completed or failed.
func (ec *ExecutionContext) Finalized() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.finalized
}
