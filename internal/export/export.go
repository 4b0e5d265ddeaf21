// Package export renders a conversation transcript for people to read.
package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/nugget/tick/internal/history"
	"github.com/nugget/tick/internal/transcript"
)

// Markdown renders conv and its rows, oldest first, as a markdown
// document. Tool calls are shown with their arguments and each result
// is labelled with the tool that produced it.
func Markdown(conv *transcript.Conversation, rows []transcript.Message) string {
	var sb strings.Builder

	// Header
	fmt.Fprintf(&sb, "# %s\n\n", conv.Title)
	fmt.Fprintf(&sb, "**Conversation:** %s\n", conv.ID)
	fmt.Fprintf(&sb, "**Started:** %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "**Messages:** %d\n", len(rows))
	sb.WriteString("\n---\n\n")

	callNames := make(map[string]string)
	for _, m := range rows {
		ts := m.CreatedAt.Format("15:04:05")

		switch history.KindOf(m) {
		case transcript.KindToolCalls:
			msg, err := history.DecodeAssistantCalls(m.Content)
			if err != nil {
				fmt.Fprintf(&sb, "### 🤖 Assistant [%s]\n\n%s\n\n", ts, m.Content)
				continue
			}
			if text := msg.Text(); text != "" {
				fmt.Fprintf(&sb, "### 🤖 Assistant [%s]\n\n%s\n\n", ts, text)
			}
			for _, c := range msg.ToolCalls {
				callNames[c.ID] = c.Function.Name
				fmt.Fprintf(&sb, "### 🔧 %s [%s]\n\n", c.Function.Name, ts)
				fmt.Fprintf(&sb, "**Arguments:**\n```json\n%s\n```\n\n", c.Function.Arguments)
			}
			continue

		case transcript.KindToolResult:
			msg, err := history.DecodeToolResult(m.Content)
			if err != nil {
				fmt.Fprintf(&sb, "### 🔧 tool [%s]\n\n```\n%s\n```\n\n", ts, m.Content)
				continue
			}
			name := callNames[msg.ToolCallID]
			if name == "" {
				name = msg.ToolCallID
			}
			fmt.Fprintf(&sb, "**Result** (%s):\n```\n%s\n```\n\n", name, msg.Text())
			continue
		}

		switch m.Role {
		case transcript.RoleUser:
			fmt.Fprintf(&sb, "### 🧑 User [%s]\n\n%s\n\n", ts, m.Content)
		case transcript.RoleAssistant:
			fmt.Fprintf(&sb, "### 🤖 Assistant [%s]\n\n%s\n\n", ts, m.Content)
		default:
			fmt.Fprintf(&sb, "### %s [%s]\n\n%s\n\n", m.Role, ts, m.Content)
		}
	}

	return sb.String()
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML renders the Markdown form as a standalone HTML page. Raw HTML in
// messages is not passed through.
func HTML(conv *transcript.Conversation, rows []transcript.Message) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(conv, rows)), &buf); err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5; max-width: 48em; margin: auto;">
%s
</body></html>`, html.EscapeString(conv.Title), buf.String())

	return page, nil
}
