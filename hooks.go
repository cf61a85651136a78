package toolflow

import "context"

// Hooks are caller- or engine-registered functions invoked at lifecycle
// transitions. Two sets exist: the Executor's global set and a per-call
// set supplied via ExecuteOptions. They are merged per phase, with the
// per-call hook replacing the global hook for the same phase — the two
// are never composed.
type Hooks struct {
	// BeforeValidation runs before the validation phase.
	BeforeValidation func(ctx context.Context, ec *ExecutionContext)

	// AfterValidation runs after validation with the outcome.
	AfterValidation func(ctx context.Context, ec *ExecutionContext, valid bool)

	// BeforeExecution runs after parameter transformation, immediately
	// before the tool's unit of work starts.
	BeforeExecution func(ctx context.Context, ec *ExecutionContext)

	// AfterExecution runs after the tool returns a result. A non-nil
	// return value replaces the result.
	AfterExecution func(ctx context.Context, ec *ExecutionContext, res *Result) *Result

	// OnError runs when the invocation fails. A non-nil return value is
	// used as the invocation's result instead of the standard failure.
	OnError func(ctx context.Context, ec *ExecutionContext, err error) *Result

	// OnTimeout runs when the invocation exceeds its time budget. A
	// non-nil return value is used as the invocation's result; otherwise
	// the standard timeout failure is returned.
	OnTimeout func(ctx context.Context, ec *ExecutionContext) *Result
}

// merge overlays call hooks on top of base, phase by phase. A phase whose
// call hook is nil keeps the base hook.
func (base Hooks) merge(call Hooks) Hooks {
	out := base
	if call.BeforeValidation != nil {
		out.BeforeValidation = call.BeforeValidation
	}
	if call.AfterValidation != nil {
		out.AfterValidation = call.AfterValidation
	}
	if call.BeforeExecution != nil {
		out.BeforeExecution = call.BeforeExecution
	}
	if call.AfterExecution != nil {
		out.AfterExecution = call.AfterExecution
	}
	if call.OnError != nil {
		out.OnError = call.OnError
	}
	if call.OnTimeout != nil {
		out.OnTimeout = call.OnTimeout
	}
	return out
}
