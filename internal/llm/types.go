// Package llm wraps the external generative-model vendors behind a
// vendor-neutral interface (§4.3), the way internal/core/llm's
// LLMProvider interface wraps OpenAI and Gemini behind a common surface,
// with the bounded tool-call loop folded into the adapter itself.
package llm

import (
	"context"
	"fmt"
)

// PartKind discriminates a content Part's payload.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
	PartFile  PartKind = "file"
)

// Part is one element of a Message's multi-modal content.
type Part struct {
	Kind     PartKind
	Text     string
	URL      string
	MimeType string
	Filename string
}

// Role mirrors store.MessageRole for the wire shape the adapter sees.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation the model requested in a turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is the response fed back for one ToolCall.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	IsError    bool
}

// Message is one entry of the conversation passed to Chat. RawContent, if
// set by a previous call's Response, lets an adapter reinject its own
// vendor-native representation of an assistant turn instead of
// reconstructing it from Parts/ToolCalls, preserving exact parity with
// what the model itself emitted.
type Message struct {
	Role       Role
	Parts      []Part
	ToolCalls  []ToolCall
	ToolResult *ToolResult
	RawContent any
}

// ToolDef is one tool exposed to the model for this turn, sourced from a
// toolpool.ToolSet.
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Usage is the vendor-reported token count for one model call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Response is the result of one underlying model call (one tool-loop
// step), before the adapter decides whether to loop again.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	RawContent any
	Usage     *Usage // nil if the vendor did not report usage
}

// ToolInvoker dispatches a tool call to its owning subprocess; callers
// pass a toolpool.ToolSet.Invoke-shaped function so this package does not
// import toolpool directly.
type ToolInvoker func(ctx context.Context, name string, args map[string]any) (string, error)

// ChatRequest is one full turn's input: system prompt, available tools,
// and the message history including the new user turn.
type ChatRequest struct {
	SystemPrompt string
	Tools        []ToolDef
	Messages     []Message
	Invoke       ToolInvoker
}

// ChatResult is what the bounded tool loop (§4.3) ultimately returns to
// the pipeline: final text plus aggregate usage across every step that
// reported it.
type ChatResult struct {
	Text  string
	Usage *Usage
}

// Adapter is the vendor-neutral interface MessagePipeline depends on.
// The bounded tool-call loop (depth 10, configurable) lives inside the
// adapter: a step is one model call plus any tool invocations it
// requests, and the adapter loops until the model returns a final text
// response or the cap is reached.
type Adapter interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResult, error)
}

// TransientLLMError is retryable but the pipeline does not auto-retry; it
// surfaces as a user-facing failure message.
type TransientLLMError struct{ Cause error }

func (e *TransientLLMError) Error() string { return fmt.Sprintf("transient llm error: %v", e.Cause) }
func (e *TransientLLMError) Unwrap() error { return e.Cause }

// PermanentLLMError indicates misconfiguration; surfaced as a 5xx to the
// API layer.
type PermanentLLMError struct{ Cause error }

func (e *PermanentLLMError) Error() string { return fmt.Sprintf("permanent llm error: %v", e.Cause) }
func (e *PermanentLLMError) Unwrap() error { return e.Cause }
