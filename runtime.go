package autopilot

import (
	"context"

	"github.com/deepnoodle-ai/autopilot/hooks"
)

// PermissionMode controls how the agent runtime handles permission prompts.
type PermissionMode string

const (
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	PermissionDefault     PermissionMode = "default"
)

// SessionRequest describes one agent session turn. A non-empty SessionID
// resumes the prior conversation with a new turn instead of starting fresh.
type SessionRequest struct {
	Prompt         string
	SessionID      string
	AllowedTools   []string
	PermissionMode PermissionMode
	WorkingDir     string

	// Interceptor, when set, must be consulted by the runtime around every
	// tool invocation. A deny decision means the tool is not executed and
	// the decision reason is reported as the tool's observed result.
	Interceptor ToolInterceptor
}

// ToolInterceptor is consulted by the runtime before and after each tool
// invocation in a session.
type ToolInterceptor interface {
	// PreToolUse runs before a tool executes. A deny decision aborts the
	// invocation; the reason becomes the tool's result.
	PreToolUse(ctx context.Context, call *ToolCall) hooks.Decision

	// PostToolUse runs after a tool completed. A non-empty return value is
	// fed back to the agent as additional context for its next turn.
	PostToolUse(ctx context.Context, call *ToolCall, result *ToolResult) string
}

// EventType discriminates agent session events.
type EventType string

const (
	EventText       EventType = "text"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventResult     EventType = "result"
)

// ToolCall describes a requested tool invocation.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// ToolResult describes the observed result of a tool invocation.
type ToolResult struct {
	ToolID  string `json:"tool_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Result is the final event payload of a session turn.
type Result struct {
	Text       string         `json:"text"`
	SessionID  string         `json:"session_id"`
	CostUSD    float64        `json:"cost_usd,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
}

// Event is one element of a session's event stream. Exactly one payload
// field is set, matching Type.
type Event struct {
	Type       EventType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
	Result     *Result
}

// EventStream yields session events in order, ending with a result event
// followed by io.EOF.
type EventStream interface {
	// Next blocks until the next event is available or ctx is done.
	Next(ctx context.Context) (*Event, error)

	// Close releases the session transport. Safe to call more than once.
	Close() error
}

// AgentRuntime is the external conversational agent runtime boundary. One
// OpenSession call corresponds to one session turn.
type AgentRuntime interface {
	OpenSession(ctx context.Context, req SessionRequest) (EventStream, error)
}
