package irisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/petal-labs/iris/tools"

	"github.com/petal-labs/toolflow"
)

// mockTool is a mock implementation of tools.Tool for testing.
type mockTool struct {
	name        string
	description string
	callResult  any
	callError   error
	gotArgs     json.RawMessage
}

func (m *mockTool) Name() string {
	return m.name
}

func (m *mockTool) Description() string {
	return m.description
}

func (m *mockTool) Schema() tools.ToolSchema {
	return tools.ToolSchema{
		JSONSchema: json.RawMessage(`{"type": "object"}`),
	}
}

func (m *mockTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	m.gotArgs = args
	if m.callError != nil {
		return nil, m.callError
	}
	return m.callResult, nil
}

func TestNewToolAdapter(t *testing.T) {
	mock := &mockTool{name: "test-tool", description: "A test tool"}
	adapter := NewToolAdapter(mock)

	if adapter == nil {
		t.Fatal("expected adapter to be non-nil")
	}
	if adapter.Name() != "test-tool" {
		t.Errorf("expected name 'test-tool', got %q", adapter.Name())
	}
	if adapter.Description() != "A test tool" {
		t.Errorf("expected description 'A test tool', got %q", adapter.Description())
	}
	if adapter.Version() != "iris" {
		t.Errorf("expected default version 'iris', got %q", adapter.Version())
	}
}

func TestToolAdapter_WithCapabilities(t *testing.T) {
	mock := &mockTool{name: "test-tool"}
	adapter := NewToolAdapter(mock).
		WithCapabilities("search", "documents").
		WithVersion("2.0.0")

	caps := adapter.Capabilities()
	if len(caps) != 2 || caps[0] != "search" || caps[1] != "documents" {
		t.Errorf("unexpected capabilities: %v", caps)
	}
	if adapter.Version() != "2.0.0" {
		t.Errorf("expected version '2.0.0', got %q", adapter.Version())
	}
}

func TestToolAdapter_Execute_MapResult(t *testing.T) {
	mock := &mockTool{
		name:       "test-tool",
		callResult: map[string]any{"result": "success", "count": 42},
	}
	adapter := NewToolAdapter(mock)

	req := toolflow.NewRequest(map[string]any{"query": "hello"})
	res, err := adapter.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Error("expected success result")
	}
	data, ok := res.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %T", res.Data)
	}
	if data["result"] != "success" {
		t.Errorf("expected result 'success', got %v", data["result"])
	}

	var args map[string]any
	if err := json.Unmarshal(mock.gotArgs, &args); err != nil {
		t.Fatalf("failed to unmarshal forwarded args: %v", err)
	}
	if args["query"] != "hello" {
		t.Errorf("expected forwarded query 'hello', got %v", args["query"])
	}
}

func TestToolAdapter_Execute_StructResult(t *testing.T) {
	type output struct {
		Status string `json:"status"`
	}
	mock := &mockTool{
		name:       "test-tool",
		callResult: output{Status: "ok"},
	}
	adapter := NewToolAdapter(mock)

	req := toolflow.NewRequest(nil)
	res, err := adapter.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, ok := res.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %T", res.Data)
	}
	if data["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", data["status"])
	}
}

func TestToolAdapter_Execute_ScalarResult(t *testing.T) {
	mock := &mockTool{name: "test-tool", callResult: "plain string"}
	adapter := NewToolAdapter(mock)

	req := toolflow.NewRequest(nil)
	res, err := adapter.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, ok := res.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %T", res.Data)
	}
	if data["result"] != "plain string" {
		t.Errorf("expected wrapped scalar, got %v", data)
	}
}

func TestToolAdapter_Execute_CallError(t *testing.T) {
	mock := &mockTool{name: "test-tool", callError: errors.New("boom")}
	adapter := NewToolAdapter(mock)

	req := toolflow.NewRequest(nil)
	_, err := adapter.Execute(context.Background(), req)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, mock.callError) {
		t.Errorf("expected wrapped call error, got %v", err)
	}
}

func TestToolAdapter_Execute_NilResult(t *testing.T) {
	mock := &mockTool{name: "test-tool", callResult: nil}
	adapter := NewToolAdapter(mock)

	req := toolflow.NewRequest(nil)
	res, err := adapter.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, ok := res.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %T", res.Data)
	}
	if len(data) != 0 {
		t.Errorf("expected empty data, got %v", data)
	}
}
