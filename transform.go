package toolflow

import (
	"context"
	"time"
)

// ParamTransformer rewrites a request before execution. Transformers are
// expected to be pure: derive a new request (or mutate the given clone)
// without touching external state.
type ParamTransformer func(ctx context.Context, req *Request) (*Request, error)

// ResultTransformer rewrites a result after execution.
type ResultTransformer func(ctx context.Context, res *Result, req *Request) (*Result, error)

// namedParamTransformer pairs a transformer with a name for history entries.
type namedParamTransformer struct {
	name string
	fn   ParamTransformer
}

type namedResultTransformer struct {
	name string
	fn   ResultTransformer
}

// stampRequestTime is the built-in parameter transformer: it stamps a
// creation timestamp onto the request if absent.
func stampRequestTime(ctx context.Context, req *Request) (*Request, error) {
	if req.Created.IsZero() {
		req.Created = time.Now()
	}
	return req, nil
}

// stampResult is the built-in result transformer: it stamps a timestamp
// and correlation ID if absent, and derives the success flag from error
// absence when the tool left both unset.
func stampResult(ctx context.Context, res *Result, req *Request) (*Result, error) {
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}
	if res.CorrelationID == "" && req != nil {
		res.CorrelationID = req.CorrelationID
	}
	if !res.Success && res.Error == "" {
		res.Success = true
	}
	return res, nil
}
