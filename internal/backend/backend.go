// Package backend defines the reasoning backend interface: an opaque
// request/response chat surface used by both orchestrator roles. Tool call
// arguments cross this boundary as raw JSON text so the caller can apply its
// own repair policy before parsing.
package backend

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one conversation entry.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // Assistant messages that requested tools
	ToolCallID string     // Tool result messages
	Name       string     // Tool name on tool result messages
}

// ToolDef advertises one callable tool to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema
}

// ToolCall is a tool invocation requested by the model. Arguments is the raw
// JSON string exactly as the model produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ChatRequest carries one turn's input.
type ChatRequest struct {
	Messages   []Message
	Tools      []ToolDef
	ToolChoice string // "" lets the model decide
}

// ChatResponse carries the model's reply: free text, tool calls, or both.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Backend is the reasoning service. Any error is surfaced as-is; retry
// policy, if any, lives inside the implementation.
type Backend interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
