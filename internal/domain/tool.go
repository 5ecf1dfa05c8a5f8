package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Permission is the (action, resource type) pair a tool requires.
type Permission struct {
	Action   string `json:"action"   yaml:"action"`
	Resource string `json:"resource" yaml:"resource"`
}

func (p Permission) String() string { return p.Resource + ":" + p.Action }

// ToolExecutor runs a tool with already-authorized arguments.
type ToolExecutor interface {
	Execute(ctx context.Context, args json.RawMessage) (*ToolResult, error)
}

// ToolExecutorFunc adapts a plain function to ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, args json.RawMessage) (*ToolResult, error)

// Execute calls f(ctx, args).
func (f ToolExecutorFunc) Execute(ctx context.Context, args json.RawMessage) (*ToolResult, error) {
	return f(ctx, args)
}

// ToolSpec declares a callable tool: its schema, the permission it requires
// and the executor behind it. Specs are registered once at startup and are
// not modified afterwards.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Permission  Permission
	Executor    ToolExecutor
}

// Schema returns the function-calling schema for the tool.
func (s *ToolSpec) Schema() ToolSchema {
	return ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
}

// ToolInvoker resolves tools by name and executes them behind a permission
// check. It is the only path from an agent to a tool executor.
type ToolInvoker interface {
	Resolve(name string) (*ToolSpec, error)
	Invoke(ctx context.Context, spec *ToolSpec, identity Identity, args json.RawMessage) (*ToolResult, error)
	Schemas() []ToolSchema
}
