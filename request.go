package toolflow

import (
	"time"

	"github.com/google/uuid"
)

// Request carries the parameters for a single tool invocation.
// One Request is created per invocation; the parameter-transform pipeline
// may rewrite Params before execution, everything else stays fixed.
type Request struct {
	// Params is the arbitrary parameter payload handed to the tool.
	Params map[string]any

	// Created is when the request was built.
	Created time.Time

	// CorrelationID uniquely identifies this invocation. The result
	// produced for this request carries the same ID.
	CorrelationID string

	// Context is optional caller-supplied data (for example the
	// accumulated results of earlier plan phases).
	Context map[string]any
}

// NewRequest creates a request with a fresh correlation ID.
func NewRequest(params map[string]any) *Request {
	return &Request{
		Params:        params,
		Created:       time.Now(),
		CorrelationID: uuid.NewString(),
	}
}

// Clone creates a copy of the request with shallow-copied maps, suitable
// for handing to a transformer without exposing the caller's maps.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := &Request{
		Created:       r.Created,
		CorrelationID: r.CorrelationID,
	}
	if r.Params != nil {
		out.Params = make(map[string]any, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = v
		}
	}
	if r.Context != nil {
		out.Context = make(map[string]any, len(r.Context))
		for k, v := range r.Context {
			out.Context[k] = v
		}
	}
	return out
}

// Result is the uniform outcome shape for every invocation.
// Validation failures, execution failures, and timeouts are all normalized
// into this shape rather than surfaced as errors across the public boundary.
type Result struct {
	// Success reports whether the invocation succeeded. The default
	// result transformer derives it from Error absence when the tool
	// left both fields unset.
	Success bool

	// Data is the optional result payload.
	Data any

	// Error is the failure message, empty on success.
	Error string

	// Timestamp is when the result was produced.
	Timestamp time.Time

	// CorrelationID is copied from the originating request.
	CorrelationID string

	// Meta is optional result metadata (timing, cache info, etc.).
	Meta map[string]any
}

// NewResult creates an empty successful result correlated to the request.
func NewResult(req *Request) *Result {
	res := &Result{
		Success:   true,
		Timestamp: time.Now(),
	}
	if req != nil {
		res.CorrelationID = req.CorrelationID
	}
	return res
}

// FailureResult creates a failed result carrying the given message.
func FailureResult(req *Request, message string) *Result {
	res := &Result{
		Success:   false,
		Error:     message,
		Timestamp: time.Now(),
	}
	if req != nil {
		res.CorrelationID = req.CorrelationID
	}
	return res
}

// SetMeta sets a metadata key, allocating the map on first use.
func (r *Result) SetMeta(key string, value any) {
	if r.Meta == nil {
		r.Meta = make(map[string]any)
	}
	r.Meta[key] = value
}
