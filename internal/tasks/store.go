package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nugget/tick/internal/database"
)

// Store persists tasks in SQLite. Every query is filtered by owner.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const taskColumns = `id, user_id, title, description, completed, category, priority, due_date, sort_order, created_at, updated_at`

// Create inserts t and fills in its ID and timestamps.
func (s *Store) Create(ctx context.Context, t *Task) error {
	if t.UserID == "" {
		return errors.New("create task: missing owner")
	}
	if t.Title == "" {
		return errors.New("create task: title is required")
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (user_id, title, description, completed, category, priority, due_date, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.UserID, t.Title, nullString(t.Description), t.Completed, nullString(t.Category),
		string(t.Priority), nullDate(t.DueDate), t.SortOrder,
		database.FormatTime(now), database.FormatTime(now))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	t.ID = id
	return nil
}

// Get returns the task with the given id if userID owns it.
func (s *Store) Get(ctx context.Context, userID string, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns userID's tasks, newest first.
func (s *Store) List(ctx context.Context, userID string, opts ListOptions) ([]Task, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{userID}
	switch opts.Status {
	case StatusCompleted:
		query += ` AND completed = 1`
	case StatusPending:
		query += ` AND completed = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Update applies p to the task if userID owns it and returns the result.
func (s *Store) Update(ctx context.Context, userID string, id int64, p Patch) (*Task, error) {
	t, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		due := *p.DueDate
		t.DueDate = &due
	}
	t.UpdatedAt = s.now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, completed = ?, category = ?, priority = ?, due_date = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, t.Title, nullString(t.Description), t.Completed, nullString(t.Category),
		string(t.Priority), nullDate(t.DueDate), database.FormatTime(t.UpdatedAt),
		id, userID)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return t, nil
}

// Delete removes the task if userID owns it.
func (s *Store) Delete(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	var description, category, dueDate sql.NullString
	var priority, createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &description, &t.Completed,
		&category, &priority, &dueDate, &t.SortOrder, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Category = category.String
	t.Priority = Priority(priority)
	if dueDate.Valid {
		if d, err := time.Parse(DateLayout, dueDate.String); err == nil {
			t.DueDate = &d
		}
	}
	t.CreatedAt = database.ParseTime(createdAt)
	t.UpdatedAt = database.ParseTime(updatedAt)
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(DateLayout), Valid: true}
}
