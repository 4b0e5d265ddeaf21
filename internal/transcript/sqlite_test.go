package transcript

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/nugget/tick/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(t.Context(), "sqlite", filepath.Join(t.TempDir(), "transcript_test.db"), nil)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestFindConversation_ScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conv, err := s.CreateConversation(ctx, "alice", "groceries")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	got, err := s.FindConversation(ctx, conv.ID, "alice")
	if err != nil {
		t.Fatalf("FindConversation(owner): %v", err)
	}
	if got.Title != "groceries" {
		t.Errorf("Title = %q, want %q", got.Title, "groceries")
	}

	if _, err := s.FindConversation(ctx, conv.ID, "mallory"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindConversation(other user) error = %v, want ErrNotFound", err)
	}
	if _, err := s.FindConversation(ctx, "no-such-id", "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindConversation(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCreateConversation_DefaultTitle(t *testing.T) {
	s := newTestStore(t)

	conv, err := s.CreateConversation(t.Context(), "alice", "")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", conv.Title, DefaultTitle)
	}
}

func TestAppendMessage_GaplessSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conv, _ := s.CreateConversation(ctx, "alice", "")
	other, _ := s.CreateConversation(ctx, "alice", "")

	for i := 0; i < 3; i++ {
		m := &Message{ConversationID: conv.ID, Role: RoleUser, Kind: KindText, Content: fmt.Sprintf("m%d", i)}
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if m.Seq != int64(i+1) {
			t.Errorf("Seq = %d, want %d", m.Seq, i+1)
		}
		if m.ID == "" {
			t.Error("ID not assigned")
		}
	}

	m := &Message{ConversationID: other.ID, Role: RoleUser, Content: "first"}
	if err := s.AppendMessage(ctx, m); err != nil {
		t.Fatalf("AppendMessage(other): %v", err)
	}
	if m.Seq != 1 {
		t.Errorf("sequence should be per conversation, got %d", m.Seq)
	}
}

func TestAppendMessage_InvalidRole(t *testing.T) {
	s := newTestStore(t)
	conv, _ := s.CreateConversation(t.Context(), "alice", "")

	err := s.AppendMessage(t.Context(), &Message{ConversationID: conv.ID, Role: "narrator", Content: "x"})
	if err == nil {
		t.Fatal("AppendMessage with invalid role should error")
	}
}

func TestRecentMessages_WindowOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	conv, _ := s.CreateConversation(ctx, "alice", "")

	for i := 1; i <= 25; i++ {
		m := &Message{ConversationID: conv.ID, Role: RoleUser, Kind: KindText, Content: fmt.Sprintf("m%02d", i)}
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.RecentMessages(ctx, conv.ID, 20)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("got %d messages, want 20", len(msgs))
	}
	if msgs[0].Content != "m06" {
		t.Errorf("first = %q, want m06", msgs[0].Content)
	}
	if msgs[19].Content != "m25" {
		t.Errorf("last = %q, want m25", msgs[19].Content)
	}

	all, err := s.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(all) != 25 {
		t.Errorf("Messages returned %d, want 25", len(all))
	}
}

func TestListConversations_OwnerOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	first, _ := s.CreateConversation(ctx, "alice", "first")
	second, _ := s.CreateConversation(ctx, "alice", "second")
	s.CreateConversation(ctx, "bob", "bob's")

	// Activity on the first conversation moves it to the top.
	s.AppendMessage(ctx, &Message{ConversationID: first.ID, Role: RoleUser, Content: "hi"})

	convs, err := s.ListConversations(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].ID != first.ID || convs[1].ID != second.ID {
		t.Errorf("order = [%s %s], want [%s %s]", convs[0].Title, convs[1].Title, first.Title, second.Title)
	}
}

func TestTitleFrom(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultTitle},
		{"Add a task to buy milk", "Add a task to buy milk"},
		{"line one\nline two", "line one"},
		{strings.Repeat("x", 60), strings.Repeat("x", 49) + "…"},
	}
	for _, tt := range tests {
		if got := TitleFrom(tt.in); got != tt.want {
			t.Errorf("TitleFrom(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
