package toolflow

import (
	"context"
)

// Tool is the fundamental unit of work executed by the engine.
// Each tool has a unique name, descriptive metadata, and an Execute method.
type Tool interface {
	// Name returns the unique identifier for this tool within a catalog.
	Name() string

	// Description returns human-readable text describing what the tool does.
	Description() string

	// Capabilities returns the capability tags this tool declares.
	Capabilities() []string

	// Version returns the tool's version string.
	Version() string

	// Execute runs the tool's unit of work for the given request.
	// Implementations should honor ctx cancellation where possible; the
	// engine treats cancellation as cooperative and will abandon, not
	// kill, a tool that ignores it.
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// Validator is an optional interface for tools that can pre-check a request.
// A tool that does not implement Validator is treated as always valid.
type Validator interface {
	// Validate reports whether the request is acceptable for execution.
	// Returning false or an error short-circuits the invocation before
	// the execute phase.
	Validate(ctx context.Context, req *Request) (bool, error)
}

// MetadataProvider is an optional interface for tools that expose extra
// metadata (for example a declared "complexity" hint in [0,1]) to the
// catalog at registration time.
type MetadataProvider interface {
	Metadata() map[string]any
}

// FuncTool wraps plain functions as a Tool.
// This is convenient for simple tools and testing.
type FuncTool struct {
	name         string
	description  string
	capabilities []string
	version      string
	execute      func(ctx context.Context, req *Request) (*Result, error)
	validate     func(ctx context.Context, req *Request) (bool, error)
	metadata     map[string]any
}

// NewFuncTool creates a tool that executes the given function.
func NewFuncTool(name string, fn func(ctx context.Context, req *Request) (*Result, error)) *FuncTool {
	return &FuncTool{
		name:    name,
		version: "0.0.0",
		execute: fn,
	}
}

// WithDescription sets the tool description and returns the tool for chaining.
func (t *FuncTool) WithDescription(desc string) *FuncTool {
	t.description = desc
	return t
}

// WithCapabilities sets the capability tags and returns the tool for chaining.
func (t *FuncTool) WithCapabilities(caps ...string) *FuncTool {
	t.capabilities = caps
	return t
}

// WithVersion sets the version string and returns the tool for chaining.
func (t *FuncTool) WithVersion(version string) *FuncTool {
	t.version = version
	return t
}

// WithValidator sets the validation predicate and returns the tool for chaining.
func (t *FuncTool) WithValidator(fn func(ctx context.Context, req *Request) (bool, error)) *FuncTool {
	t.validate = fn
	return t
}

// WithMetadata sets extra metadata exposed to the catalog.
func (t *FuncTool) WithMetadata(meta map[string]any) *FuncTool {
	t.metadata = meta
	return t
}

// Name returns the tool's unique identifier.
func (t *FuncTool) Name() string { return t.name }

// Description returns the tool's description.
func (t *FuncTool) Description() string { return t.description }

// Capabilities returns the tool's capability tags.
func (t *FuncTool) Capabilities() []string { return t.capabilities }

// Version returns the tool's version string.
func (t *FuncTool) Version() string { return t.version }

// Execute runs the wrapped function.
func (t *FuncTool) Execute(ctx context.Context, req *Request) (*Result, error) {
	if t.execute == nil {
		return NewResult(req), nil
	}
	return t.execute(ctx, req)
}

// Validate runs the wrapped predicate, or reports valid when none is set.
func (t *FuncTool) Validate(ctx context.Context, req *Request) (bool, error) {
	if t.validate == nil {
		return true, nil
	}
	return t.validate(ctx, req)
}

// Metadata returns the extra metadata set via WithMetadata.
func (t *FuncTool) Metadata() map[string]any { return t.metadata }

// Ensure interface compliance at compile time.
var (
	_ Tool             = (*FuncTool)(nil)
	_ Validator        = (*FuncTool)(nil)
	_ MetadataProvider = (*FuncTool)(nil)
)
