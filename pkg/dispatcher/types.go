package dispatcher

import "context"

// ToolCallRequest is a structured request emitted by the reasoning loop.
type ToolCallRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	CallID    string                 `json:"call_id"`
}

// ToolResult is the single result produced for a request. Exactly one result
// exists per request; results are never silently dropped.
type ToolResult struct {
	CallID    string `json:"call_id"`
	Output    string `json:"output,omitempty"`
	Err       *Error `json:"error,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// OK reports whether the call succeeded.
func (r ToolResult) OK() bool {
	return r.Err == nil
}

// ToolParameter declares one parameter of a tool's argument shape.
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolHandler executes a validated tool call.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (string, error)

// GuardFunc inspects arguments before execution. A non-empty return is a
// warning: the call is refused with a blocked result instead of executing.
// Best-effort guard, not a sandbox.
type GuardFunc func(args map[string]interface{}) string

// ToolDefinition describes a registered tool.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
	Guard       GuardFunc       `json:"-"`
}
