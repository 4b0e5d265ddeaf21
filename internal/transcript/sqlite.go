package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/tick/internal/database"
)

// Store is the SQLite-backed transcript store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// FindConversation returns the conversation with the given id only if it
// belongs to userID.
func (s *Store) FindConversation(ctx context.Context, id, userID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = ? AND user_id = ?
	`, id, userID)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return conv, nil
}

// CreateConversation starts a new conversation for userID.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}
	now := s.now()
	conv := &Conversation{
		ID:        newID(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, conv.ID, conv.UserID, conv.Title, database.FormatTime(now), database.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns userID's conversations, most recently active
// first.
func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// AppendMessage adds m to the end of its conversation. ID, Seq and
// CreatedAt are assigned here; the conversation's updated_at is bumped in
// the same transaction.
func (s *Store) AppendMessage(ctx context.Context, m *Message) error {
	if !m.Role.Valid() {
		return fmt.Errorf("append message: invalid role %q", m.Role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`,
		m.ConversationID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	now := s.now()
	id := newID()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, seq, role, kind, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, m.ConversationID, seq, string(m.Role), string(m.Kind), m.Content, database.FormatTime(now))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		database.FormatTime(now), m.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.ID = id
	m.Seq = seq
	m.CreatedAt = now
	return nil
}

// RecentMessages returns the last n messages of a conversation, oldest
// first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, n int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, kind, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Messages returns the full transcript of a conversation, oldest first.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, kind, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*Conversation, error) {
	var c Conversation
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = database.ParseTime(createdAt)
	c.UpdatedAt = database.ParseTime(updatedAt)
	return &c, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		var role, kind, createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &role, &kind, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		m.Kind = Kind(kind)
		m.CreatedAt = database.ParseTime(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
