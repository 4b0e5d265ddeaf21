package history

import (
	"reflect"
	"testing"

	"github.com/nugget/tick/internal/llm"
	"github.com/nugget/tick/internal/transcript"
)

func callMessage(content *string) llm.Message {
	return llm.Message{
		Role:    "assistant",
		Content: content,
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: "add_task", Arguments: `{"title": "buy milk"}`}},
			{ID: "call_2", Type: "function", Function: llm.FunctionCall{Name: "list_tasks", Arguments: `{}`}},
		},
	}
}

func TestEncodeAssistantCalls_StoredLayout(t *testing.T) {
	got, err := EncodeAssistantCalls(callMessage(nil))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"role": "assistant", "content": null, "tool_calls": [` +
		`{"id": "call_1", "type": "function", "function": {"name": "add_task", "arguments": "{\"title\": \"buy milk\"}"}}, ` +
		`{"id": "call_2", "type": "function", "function": {"name": "list_tasks", "arguments": "{}"}}]}`
	if got != want {
		t.Errorf("EncodeAssistantCalls() =\n%s\nwant\n%s", got, want)
	}
}

func TestEncodeToolResult_StoredLayout(t *testing.T) {
	got, err := EncodeToolResult("call_1", "Task 3 deleted.")
	if err != nil {
		t.Fatal(err)
	}
	want := `{"tool_call_id": "call_1", "content": "Task 3 deleted."}`
	if got != want {
		t.Errorf("EncodeToolResult() = %s, want %s", got, want)
	}
}

func TestAssistantCalls_RoundTripIsIdempotent(t *testing.T) {
	for _, content := range []*string{nil, llm.String(""), llm.String("Let me add that.")} {
		first, err := EncodeAssistantCalls(callMessage(content))
		if err != nil {
			t.Fatal(err)
		}

		replayed := Encode([]transcript.Message{{Role: transcript.RoleAssistant, Kind: transcript.KindToolCalls, Content: first}})
		if len(replayed) != 1 {
			t.Fatalf("Encode returned %d messages, want 1", len(replayed))
		}
		if !reflect.DeepEqual(replayed[0], callMessage(content)) {
			t.Errorf("replayed message = %+v, want %+v", replayed[0], callMessage(content))
		}

		second, err := EncodeAssistantCalls(replayed[0])
		if err != nil {
			t.Fatal(err)
		}
		if second != first {
			t.Errorf("re-encoded record differs:\n%s\n%s", first, second)
		}
	}
}

func TestEncode(t *testing.T) {
	callRecord, _ := EncodeAssistantCalls(callMessage(nil))
	toolRecord, _ := EncodeToolResult("call_1", `{"status": "success"}`)

	tests := []struct {
		name string
		rows []transcript.Message
		want []llm.Message
	}{
		{
			name: "plain roles",
			rows: []transcript.Message{
				{Role: transcript.RoleSystem, Kind: transcript.KindText, Content: "sys"},
				{Role: transcript.RoleUser, Kind: transcript.KindText, Content: "hi"},
				{Role: transcript.RoleAssistant, Kind: transcript.KindText, Content: "hello"},
			},
			want: []llm.Message{
				llm.TextMessage("system", "sys"),
				llm.TextMessage("user", "hi"),
				llm.TextMessage("assistant", "hello"),
			},
		},
		{
			name: "tool call turn with result",
			rows: []transcript.Message{
				{Role: transcript.RoleAssistant, Kind: transcript.KindToolCalls, Content: callRecord},
				{Role: transcript.RoleTool, Kind: transcript.KindToolResult, Content: toolRecord},
			},
			want: []llm.Message{
				callMessage(nil),
				{Role: "tool", ToolCallID: "call_1", Content: llm.String(`{"status": "success"}`)},
			},
		},
		{
			name: "legacy rows are sniffed",
			rows: []transcript.Message{
				{Role: transcript.RoleAssistant, Content: callRecord},
				{Role: transcript.RoleTool, Content: toolRecord},
				{Role: transcript.RoleAssistant, Content: "{not a record}"},
			},
			want: []llm.Message{
				callMessage(nil),
				{Role: "tool", ToolCallID: "call_1", Content: llm.String(`{"status": "success"}`)},
				llm.TextMessage("assistant", "{not a record}"),
			},
		},
		{
			name: "explicit text kind is not sniffed",
			rows: []transcript.Message{
				{Role: transcript.RoleAssistant, Kind: transcript.KindText, Content: callRecord},
			},
			want: []llm.Message{llm.TextMessage("assistant", callRecord)},
		},
		{
			name: "malformed assistant record degrades to text",
			rows: []transcript.Message{
				{Role: transcript.RoleAssistant, Kind: transcript.KindToolCalls, Content: `{"tool_calls": [`},
			},
			want: []llm.Message{llm.TextMessage("assistant", `{"tool_calls": [`)},
		},
		{
			name: "malformed tool row is dropped",
			rows: []transcript.Message{
				{Role: transcript.RoleUser, Kind: transcript.KindText, Content: "hi"},
				{Role: transcript.RoleTool, Kind: transcript.KindToolResult, Content: "plain text result"},
				{Role: transcript.RoleAssistant, Kind: transcript.KindText, Content: "ok"},
			},
			want: []llm.Message{
				llm.TextMessage("user", "hi"),
				llm.TextMessage("assistant", "ok"),
			},
		},
		{
			name: "empty",
			rows: nil,
			want: []llm.Message{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.rows)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Encode() =\n%+v\nwant\n%+v", got, tt.want)
			}
		})
	}
}
