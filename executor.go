package toolflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// invalidParamsMessage is the standardized validation failure message.
const invalidParamsMessage = "Invalid input parameters"

// ExecuteOptions control a single invocation.
type ExecuteOptions struct {
	// Timeout is the execution budget. 0 falls back to the executor's
	// default; a negative value disables the budget entirely.
	Timeout time.Duration

	// SkipValidation bypasses the validation phase.
	SkipValidation bool

	// SkipTransforms bypasses both transformer pipelines.
	SkipTransforms bool

	// DisableHistory turns off history tracking for this call, saving
	// allocations on hot paths.
	DisableHistory bool

	// Hooks are merged over the executor's global hooks; a per-call hook
	// replaces the global hook for the same phase.
	Hooks Hooks

	// CallContext is optional caller-supplied data attached to the request.
	CallContext map[string]any

	// ParentID links this invocation to an enclosing execution context.
	ParentID string

	// EventHandler receives this call's events in addition to the
	// executor's handler.
	EventHandler EventHandler

	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// DefaultTimeout applies when ExecuteOptions.Timeout is zero.
	// 0 means no budget.
	DefaultTimeout time.Duration

	// Catalog, when set, receives usage metadata updates (use count,
	// running average duration, last-used) after every invocation.
	Catalog *Catalog

	// EventHandler receives all events emitted by this executor.
	EventHandler EventHandler

	// DisableHistory turns off history tracking for every invocation.
	// ExecuteOptions.DisableHistory still disables it per call.
	DisableHistory bool
}

// Executor drives one tool invocation through its lifecycle:
// validate, transform parameters, execute, transform result, with hooks,
// timeout racing, and history recording at every transition.
type Executor struct {
	mu       sync.RWMutex
	cfg      ExecutorConfig
	hooks    Hooks
	paramTx  []namedParamTransformer
	resultTx []namedResultTransformer
}

// NewExecutor creates an executor with the built-in default transformers
// registered: a request timestamp stamp and a result timestamp/correlation
// stamp that derives the success flag from error absence.
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		cfg: cfg,
		paramTx: []namedParamTransformer{
			{name: "stamp_request_time", fn: stampRequestTime},
		},
		resultTx: []namedResultTransformer{
			{name: "stamp_result", fn: stampResult},
		},
	}
}

// SetHooks replaces the executor's global hook set.
func (e *Executor) SetHooks(h Hooks) {
	e.mu.Lock()
	e.hooks = h
	e.mu.Unlock()
}

// RegisterParamTransformer appends a parameter transformer to the
// pipeline. Transformers run in registration order on every invocation.
func (e *Executor) RegisterParamTransformer(name string, fn ParamTransformer) {
	e.mu.Lock()
	e.paramTx = append(e.paramTx, namedParamTransformer{name: name, fn: fn})
	e.mu.Unlock()
}

// RegisterResultTransformer appends a result transformer to the pipeline.
func (e *Executor) RegisterResultTransformer(name string, fn ResultTransformer) {
	e.mu.Lock()
	e.resultTx = append(e.resultTx, namedResultTransformer{name: name, fn: fn})
	e.mu.Unlock()
}

func (e *Executor) snapshot() (Hooks, []namedParamTransformer, []namedResultTransformer) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pt := make([]namedParamTransformer, len(e.paramTx))
	copy(pt, e.paramTx)
	rt := make([]namedResultTransformer, len(e.resultTx))
	copy(rt, e.resultTx)
	return e.hooks, pt, rt
}

// Execute runs one tool through the full lifecycle and returns the
// normalized result together with the execution context that tracked it.
// All failures (validation, execution, timeout) are folded into the
// Result; the engine never panics across this boundary.
func (e *Executor) Execute(ctx context.Context, tool Tool, params map[string]any, opts *ExecuteOptions) (*Result, *ExecutionContext) {
	var o ExecuteOptions
	if opts != nil {
		o = *opts
	}
	now := o.Now
	if now == nil {
		now = time.Now
	}

	globalHooks, paramTx, resultTx := e.snapshot()
	hooks := globalHooks.merge(o.Hooks)
	trackHistory := !e.cfg.DisableHistory && !o.DisableHistory

	if tool == nil {
		ec := newExecutionContext("", o.ParentID, nil, trackHistory)
		ec.setState(StateError)
		ec.appendHistory(HistoryEntry{Phase: HistoryError, Message: ErrNilTool.Error()})
		ec.finalize()
		return FailureResult(nil, ErrNilTool.Error()), ec
	}

	req := NewRequest(params)
	req.Context = o.CallContext
	ec := newExecutionContext(tool.Name(), o.ParentID, req, trackHistory)

	start := now()
	var seq uint64
	emit := func(ev Event) {
		seq++
		ev = ev.WithSeq(seq).WithTool(ec.ToolName).WithElapsed(now().Sub(start))
		if e.cfg.EventHandler != nil {
			e.cfg.EventHandler(ev)
		}
		if o.EventHandler != nil {
			o.EventHandler(ev)
		}
	}

	startEvent := NewEvent(EventExecutionStart, ec.ID).
		WithPayload("params", len(req.Params))
	if o.ParentID != "" {
		startEvent = startEvent.WithPayload("parent", o.ParentID)
	}
	emit(startEvent)
	ec.appendHistory(HistoryEntry{Phase: HistoryStart, Message: "execution started"})

	// VALIDATING
	if !o.SkipValidation {
		ec.setState(StateValidating)
		if hooks.BeforeValidation != nil {
			hooks.BeforeValidation(ctx, ec)
		}
		valid, verr := validateRequest(ctx, tool, req)
		if hooks.AfterValidation != nil {
			hooks.AfterValidation(ctx, ec, valid && verr == nil)
		}
		emit(NewEvent(EventParameterValidation, ec.ID).
			WithPayload("valid", valid && verr == nil))
		if verr != nil || !valid {
			msg := invalidParamsMessage
			ec.appendHistory(HistoryEntry{Phase: HistoryValidation, Message: msg, Details: validationDetails(verr)})
			ec.setState(StateInvalid)
			ec.finalize()
			return FailureResult(req, msg), ec
		}
		ec.appendHistory(HistoryEntry{Phase: HistoryValidation, Message: "parameters valid"})
	}

	// TRANSFORMING_PARAMS
	if !o.SkipTransforms {
		ec.setState(StateTransformingParams)
		req = applyParamTransformers(ctx, ec, paramTx, req)
		ec.Request = req
	}

	// EXECUTING
	ec.setState(StateExecuting)
	if hooks.BeforeExecution != nil {
		hooks.BeforeExecution(ctx, ec)
	}

	timeout := o.Timeout
	if timeout == 0 {
		timeout = e.cfg.DefaultTimeout
	}
	if timeout < 0 {
		timeout = 0
	}

	execStart := now()
	res, execErr, timedOut := runTool(ctx, tool, req, ec, timeout)
	execElapsed := now().Sub(execStart)

	if timedOut {
		ec.appendHistory(HistoryEntry{
			Phase:    HistoryTimeout,
			Duration: execElapsed,
			Message:  fmt.Sprintf("execution timed out after %s", timeout),
		})
		emit(NewEvent(EventExecutionTimeout, ec.ID).
			WithPayload("timeout_ms", timeout.Milliseconds()))
		ec.setState(StateTimeout)
		var final *Result
		if hooks.OnTimeout != nil {
			final = hooks.OnTimeout(ctx, ec)
		}
		if final == nil {
			final = FailureResult(req, fmt.Sprintf("execution timed out after %s", timeout))
		}
		e.recordUsage(tool.Name(), execElapsed, false)
		ec.finalize()
		return final, ec
	}

	if execErr != nil {
		ec.appendHistory(HistoryEntry{
			Phase:    HistoryError,
			Duration: execElapsed,
			Message:  execErr.Error(),
		})
		emit(NewEvent(EventExecutionError, ec.ID).
			WithPayload("error", execErr.Error()))
		ec.setState(StateError)
		var final *Result
		if hooks.OnError != nil {
			final = hooks.OnError(ctx, ec, execErr)
		}
		if final == nil {
			final = FailureResult(req, execErr.Error())
		}
		e.recordUsage(tool.Name(), execElapsed, false)
		ec.finalize()
		return final, ec
	}

	if res == nil {
		res = NewResult(req)
	}
	ec.appendHistory(HistoryEntry{
		Phase:    HistoryExecute,
		Duration: execElapsed,
		Message:  "execution finished",
	})
	emit(NewEvent(EventResultProduced, ec.ID).
		WithPayload("success", res.Success))

	if hooks.AfterExecution != nil {
		if replaced := hooks.AfterExecution(ctx, ec, res); replaced != nil {
			res = replaced
		}
	}

	// TRANSFORMING_RESULT
	if !o.SkipTransforms {
		ec.setState(StateTransformingResult)
		res = applyResultTransformers(ctx, ec, resultTx, res, req)
	} else if res.CorrelationID == "" {
		res.CorrelationID = req.CorrelationID
	}

	// COMPLETE
	ec.setState(StateComplete)
	total := now().Sub(start)
	ec.appendHistory(HistoryEntry{
		Phase:    HistoryComplete,
		Duration: total,
		Message:  "execution complete",
	})
	emit(NewEvent(EventExecutionComplete, ec.ID).
		WithPayload("success", res.Success))

	e.recordUsage(tool.Name(), execElapsed, res.Success)
	ec.finalize()
	return res, ec
}

// validateRequest invokes the tool's validation predicate when it has one.
// A panic inside the predicate counts as a validation failure.
func validateRequest(ctx context.Context, tool Tool, req *Request) (valid bool, err error) {
	v, ok := tool.(Validator)
	if !ok {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			valid = false
			err = fmt.Errorf("validator panicked: %v", r)
		}
	}()
	return v.Validate(ctx, req)
}

func validationDetails(err error) map[string]any {
	if err == nil {
		return nil
	}
	return map[string]any{"error": err.Error()}
}

// runTool races the tool's unit of work against the timeout budget.
// Losing the race abandons the work rather than killing it: the tool keeps
// the deadline ctx so cooperative implementations can stop early, and a
// late result finds the context finalized and is dropped.
func runTool(ctx context.Context, tool Tool, req *Request, ec *ExecutionContext, timeout time.Duration) (*Result, error, bool) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		res *Result
		err error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		res, err := tool.Execute(runCtx, req)
		if ec.Finalized() {
			// Abandoned call resolving late; discard the result.
			return
		}
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		return out.res, out.err, false
	case <-runCtx.Done():
		if timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, true
		}
		return nil, fmt.Errorf("execution canceled: %w", runCtx.Err()), false
	}
}

// applyParamTransformers runs the pipeline in registration order. A
// transformer that fails or panics is logged into history and skipped;
// the pipeline continues with the pre-transform request.
func applyParamTransformers(ctx context.Context, ec *ExecutionContext, txs []namedParamTransformer, req *Request) *Request {
	current := req
	applied := 0
	for _, t := range txs {
		next, err := safeParamTransform(ctx, t.fn, current)
		if err != nil {
			ec.appendHistory(HistoryEntry{
				Phase:   HistoryParamTransform,
				Message: fmt.Sprintf("transformer %s skipped: %v", t.name, err),
			})
			continue
		}
		if next != nil {
			current = next
		}
		applied++
	}
	ec.appendHistory(HistoryEntry{
		Phase:   HistoryParamTransform,
		Message: fmt.Sprintf("applied %d parameter transformers", applied),
	})
	return current
}

func applyResultTransformers(ctx context.Context, ec *ExecutionContext, txs []namedResultTransformer, res *Result, req *Request) *Result {
	current := res
	applied := 0
	for _, t := range txs {
		next, err := safeResultTransform(ctx, t.fn, current, req)
		if err != nil {
			ec.appendHistory(HistoryEntry{
				Phase:   HistoryResultTransform,
				Message: fmt.Sprintf("transformer %s skipped: %v", t.name, err),
			})
			continue
		}
		if next != nil {
			current = next
		}
		applied++
	}
	ec.appendHistory(HistoryEntry{
		Phase:   HistoryResultTransform,
		Message: fmt.Sprintf("applied %d result transformers", applied),
	})
	return current
}

func safeParamTransform(ctx context.Context, fn ParamTransformer, req *Request) (out *Request, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("transformer panicked: %v", r)
		}
	}()
	return fn(ctx, req)
}

func safeResultTransform(ctx context.Context, fn ResultTransformer, res *Result, req *Request) (out *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("transformer panicked: %v", r)
		}
	}()
	return fn(ctx, res, req)
}

func (e *Executor) recordUsage(toolName string, elapsed time.Duration, success bool) {
	if e.cfg.Catalog == nil {
		return
	}
	e.cfg.Catalog.RecordInvocation(toolName, elapsed, success)
}
