// Package tasks stores each user's to-do items.
package tasks

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a task does not exist or is owned by
// another user.
var ErrNotFound = errors.New("task not found")

// DateLayout is the only accepted due date format.
const DateLayout = "2006-01-02"

// Priority ranks a task.
type Priority string

// Task priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority validates a priority name. An empty string yields the
// default, medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("invalid priority %q (valid: low, medium, high)", s)
	}
}

// StatusFilter narrows a task listing by completion state.
type StatusFilter string

// Status filters.
const (
	StatusAll       StatusFilter = "all"
	StatusCompleted StatusFilter = "completed"
	StatusPending   StatusFilter = "pending"
)

// ParseStatus validates a status filter name. An empty string means all.
func ParseStatus(s string) (StatusFilter, error) {
	switch f := StatusFilter(s); f {
	case "":
		return StatusAll, nil
	case StatusAll, StatusCompleted, StatusPending:
		return f, nil
	default:
		return "", fmt.Errorf("invalid status %q (valid: all, completed, pending)", s)
	}
}

// Task is a to-do item owned by one user.
type Task struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	Category    string     `json:"category,omitempty"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	SortOrder   int        `json:"order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Patch lists the fields to change in an update. Nil fields are left
// untouched.
type Patch struct {
	Title       *string
	Description *string
	Completed   *bool
	Category    *string
	Priority    *Priority
	DueDate     *time.Time
}

// ListOptions controls a task listing.
type ListOptions struct {
	Status StatusFilter
	Limit  int
}

// DefaultListLimit caps listings that do not ask for a size.
const DefaultListLimit = 10

// ParseDueDate parses a YYYY-MM-DD date. Anything else is an error.
func ParseDueDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDueDate renders a due date for display, or "" if unset.
func FormatDueDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}
