// Package llm provides model exchange clients.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message is one entry in an exchange buffer. Its JSON form is the
// OpenAI chat message shape, which is also how assistant tool-call turns
// are persisted, so field order matters.
type Message struct {
	Role string `json:"role"`
	// Content is nil when an assistant turn carries only tool calls.
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Text returns the message content, or "" when it is null.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// String returns a pointer to s for use as Message content.
func String(s string) *string { return &s }

// TextMessage builds a plain message for role.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: String(content)}
}

// ToolCall is a model-issued request to run one function.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its arguments as a JSON
// document encoded in a string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is one entry of the catalog offered to the model.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef declares a callable function and its JSON Schema parameters.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoiceAuto lets the model decide whether to call tools.
const ToolChoiceAuto = "auto"

// ChatRequest is one model exchange.
type ChatRequest struct {
	Model    string
	Messages []Message
	// Tools is the catalog offered on this exchange. Nil means the model
	// must answer in text.
	Tools      []Tool
	ToolChoice string
}

// ChatResponse is the provider-neutral result of an exchange.
type ChatResponse struct {
	Model        string
	Message      Message
	FinishReason string

	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}
