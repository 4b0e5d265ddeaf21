// Package transcript persists conversations and their ordered messages.
package transcript

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation does not exist or belongs to
// another user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("conversation not found")

// DefaultTitle names a conversation created without any user text.
const DefaultTitle = "New Chat"

// Role is the speaker of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Kind records how a message's content is encoded.
type Kind string

const (
	// KindText is plain text.
	KindText Kind = "text"
	// KindToolCalls is an assistant turn that requested tool calls,
	// stored as the full JSON record.
	KindToolCalls Kind = "tool_calls"
	// KindToolResult is a tool result paired with its call id.
	KindToolResult Kind = "tool_result"
	// KindUnknown marks rows written before the kind column existed.
	// Readers fall back to inspecting the content.
	KindUnknown Kind = ""
)

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted transcript entry. Seq is assigned on append
// and is gapless within a conversation, starting at 1.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Seq            int64     `json:"seq"`
	Role           Role      `json:"role"`
	Kind           Kind      `json:"kind"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// TitleFrom derives a conversation title from the first user message.
func TitleFrom(text string) string {
	const max = 50
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			runes = runes[:i]
			break
		}
	}
	if len(runes) == 0 {
		return DefaultTitle
	}
	if len(runes) > max {
		return string(runes[:max-1]) + "…"
	}
	return string(runes)
}
