// Package history converts between persisted transcript rows and the
// message list sent on a model exchange.
//
// Assistant turns that requested tool calls are stored as the whole
// record (content plus tool_calls) so they can be replayed unchanged;
// tool results are stored as {tool_call_id, content} pairs. Rows carry a
// Kind that says which encoding was used. Rows written without a Kind
// are classified by looking at the content.
package history

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nugget/tick/internal/jsonenc"
	"github.com/nugget/tick/internal/llm"
	"github.com/nugget/tick/internal/transcript"
)

// AssistantCallRecord is the stored form of an assistant turn that
// requested tool calls. Field order is part of the stored format.
type AssistantCallRecord struct {
	Role      string         `json:"role"`
	Content   *string        `json:"content"`
	ToolCalls []llm.ToolCall `json:"tool_calls"`
}

// ToolResultRecord is the stored form of one tool result.
type ToolResultRecord struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// EncodeAssistantCalls serializes an assistant message that requested
// tool calls into message content.
func EncodeAssistantCalls(m llm.Message) (string, error) {
	rec := AssistantCallRecord{
		Role:      "assistant",
		Content:   m.Content,
		ToolCalls: m.ToolCalls,
	}
	if rec.ToolCalls == nil {
		rec.ToolCalls = []llm.ToolCall{}
	}
	s, err := jsonenc.MarshalString(rec)
	if err != nil {
		return "", fmt.Errorf("encode assistant tool calls: %w", err)
	}
	return s, nil
}

// DecodeAssistantCalls parses content written by EncodeAssistantCalls
// back into an exchange message.
func DecodeAssistantCalls(content string) (llm.Message, error) {
	var rec AssistantCallRecord
	if err := json.Unmarshal([]byte(content), &rec); err != nil {
		return llm.Message{}, fmt.Errorf("decode assistant tool calls: %w", err)
	}
	return llm.Message{
		Role:      "assistant",
		Content:   rec.Content,
		ToolCalls: rec.ToolCalls,
	}, nil
}

// EncodeToolResult serializes one tool result into message content.
func EncodeToolResult(callID, result string) (string, error) {
	s, err := jsonenc.MarshalString(ToolResultRecord{ToolCallID: callID, Content: result})
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return s, nil
}

// DecodeToolResult parses content written by EncodeToolResult.
func DecodeToolResult(content string) (llm.Message, error) {
	var rec ToolResultRecord
	if err := json.Unmarshal([]byte(content), &rec); err != nil {
		return llm.Message{}, fmt.Errorf("decode tool result: %w", err)
	}
	return llm.Message{
		Role:       "tool",
		ToolCallID: rec.ToolCallID,
		Content:    llm.String(rec.Content),
	}, nil
}

// Encode projects persisted rows, oldest first, into exchange messages.
// It never fails: an assistant row that cannot be decoded is replayed as
// plain text and a tool row that cannot be decoded is dropped, since a
// result without its call id cannot be paired.
func Encode(rows []transcript.Message) []llm.Message {
	out := make([]llm.Message, 0, len(rows))
	for _, row := range rows {
		switch row.Role {
		case transcript.RoleSystem, transcript.RoleUser:
			out = append(out, llm.TextMessage(string(row.Role), row.Content))

		case transcript.RoleAssistant:
			if KindOf(row) == transcript.KindToolCalls {
				if m, err := DecodeAssistantCalls(row.Content); err == nil {
					out = append(out, m)
					continue
				}
			}
			out = append(out, llm.TextMessage("assistant", row.Content))

		case transcript.RoleTool:
			m, err := DecodeToolResult(row.Content)
			if err != nil {
				continue
			}
			out = append(out, m)
		}
	}
	return out
}

// KindOf returns the row's stored kind, or for legacy rows the kind
// implied by the content's shape. The shape test can misread plain text
// that happens to look like a tool-call record; rows written by this
// package always carry an explicit kind.
func KindOf(row transcript.Message) transcript.Kind {
	if row.Kind != transcript.KindUnknown {
		return row.Kind
	}
	switch row.Role {
	case transcript.RoleAssistant:
		if strings.HasPrefix(row.Content, "{") && strings.Contains(row.Content, `"tool_calls":`) {
			return transcript.KindToolCalls
		}
	case transcript.RoleTool:
		return transcript.KindToolResult
	}
	return transcript.KindText
}
