// Package irisadapter bridges iris provider tools into the toolflow Tool
// contract, so externally defined tools can be cataloged and orchestrated
// without the engine knowing their internals.
package irisadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/petal-labs/iris/tools"

	"github.com/petal-labs/toolflow"
)

// ToolAdapter adapts an iris tools.Tool to the toolflow.Tool interface.
type ToolAdapter struct {
	tool         tools.Tool
	capabilities []string
	version      string
}

// NewToolAdapter creates a new adapter for the given tool.
func NewToolAdapter(tool tools.Tool) *ToolAdapter {
	return &ToolAdapter{
		tool:    tool,
		version: "iris",
	}
}

// WithCapabilities declares capability tags for selection, which iris
// tools do not carry themselves.
func (a *ToolAdapter) WithCapabilities(caps ...string) *ToolAdapter {
	a.capabilities = caps
	return a
}

// WithVersion overrides the reported version string.
func (a *ToolAdapter) WithVersion(version string) *ToolAdapter {
	a.version = version
	return a
}

// Name returns the tool's name.
func (a *ToolAdapter) Name() string {
	return a.tool.Name()
}

// Description returns the tool's description.
func (a *ToolAdapter) Description() string {
	return a.tool.Description()
}

// Capabilities returns the declared capability tags.
func (a *ToolAdapter) Capabilities() []string {
	return a.capabilities
}

// Version returns the adapter's version string.
func (a *ToolAdapter) Version() string {
	return a.version
}

// Execute marshals the request parameters to JSON, calls the underlying
// iris tool, and normalizes its output into a Result payload map.
func (a *ToolAdapter) Execute(ctx context.Context, req *toolflow.Request) (*toolflow.Result, error) {
	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	argsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	out, err := a.tool.Call(ctx, argsJSON)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	data, err := toResultMap(out)
	if err != nil {
		return nil, err
	}

	res := toolflow.NewResult(req)
	res.Data = data
	return res, nil
}

// toResultMap converts various result types to map[string]any.
func toResultMap(result any) (map[string]any, error) {
	if result == nil {
		return map[string]any{}, nil
	}

	if m, ok := result.(map[string]any); ok {
		return m, nil
	}

	// Try to convert via JSON.
	data, err := json.Marshal(result)
	if err != nil {
		// If we can't marshal, wrap in a result key.
		return map[string]any{"result": result}, nil
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		// If we can't unmarshal to map, wrap in a result key.
		return map[string]any{"result": result}, nil
	}
	return m, nil
}

// Ensure interface compliance at compile time.
var _ toolflow.Tool = (*ToolAdapter)(nil)
