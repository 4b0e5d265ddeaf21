package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/nugget/tick/internal/jsonenc"
	"github.com/nugget/tick/internal/tasks"
)

type addArgs struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"due_date"`
}

type listArgs struct {
	Status string `json:"status"`
	Limit  *int   `json:"limit"`
}

type updateArgs struct {
	TaskID    int64   `json:"task_id"`
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
	Priority  *string `json:"priority"`
	DueDate   *string `json:"due_date"`
}

type taskIDArgs struct {
	TaskID int64 `json:"task_id"`
}

// addResult and listItem fix the key order of the JSON results.
type addResult struct {
	Status string `json:"status"`
	Task   struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"task"`
}

type listItem struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Completed bool    `json:"completed"`
	Priority  string  `json:"priority"`
	DueDate   *string `json:"due_date"`
}

func addTask(ctx context.Context, env Env, args addArgs) (string, error) {
	t := &tasks.Task{
		UserID:      env.UserID,
		Title:       args.Title,
		Description: args.Description,
	}

	if args.DueDate != nil && *args.DueDate != "" {
		due, err := tasks.ParseDueDate(*args.DueDate)
		if err != nil {
			return "", &Failure{Message: "Error: Invalid date format. Use YYYY-MM-DD.", Err: err}
		}
		t.DueDate = &due
	}

	p, err := tasks.ParsePriority(args.Priority)
	if err != nil {
		return "", &Failure{Message: "Error creating task: " + err.Error(), Err: err}
	}
	t.Priority = p

	if err := env.Tasks.Create(ctx, t); err != nil {
		return "", &Failure{Message: "Error creating task: " + err.Error(), Err: err}
	}

	var res addResult
	res.Status = "success"
	res.Task.ID = t.ID
	res.Task.Title = t.Title
	return jsonenc.MarshalString(res)
}

func listTasks(ctx context.Context, env Env, args listArgs) (string, error) {
	status, err := tasks.ParseStatus(args.Status)
	if err != nil {
		return "", &Failure{Message: "Error listing tasks: " + err.Error(), Err: err}
	}

	limit := tasks.DefaultListLimit
	if args.Limit != nil {
		limit = *args.Limit
	}
	if limit <= 0 {
		return "[]", nil
	}

	list, err := env.Tasks.List(ctx, env.UserID, tasks.ListOptions{Status: status, Limit: limit})
	if err != nil {
		return "", &Failure{Message: "Error listing tasks: " + err.Error(), Err: err}
	}

	items := make([]listItem, 0, len(list))
	for _, t := range list {
		item := listItem{
			ID:        t.ID,
			Title:     t.Title,
			Completed: t.Completed,
			Priority:  string(t.Priority),
		}
		if t.DueDate != nil {
			d := tasks.FormatDueDate(t.DueDate)
			item.DueDate = &d
		}
		items = append(items, item)
	}
	return jsonenc.MarshalString(items)
}

func updateTask(ctx context.Context, env Env, args updateArgs) (string, error) {
	var p tasks.Patch
	p.Title = args.Title
	p.Completed = args.Completed

	if args.Priority != nil {
		pr, err := tasks.ParsePriority(*args.Priority)
		if err != nil {
			return "", &Failure{Message: "Error updating task: " + err.Error(), Err: err}
		}
		p.Priority = &pr
	}
	if args.DueDate != nil {
		due, err := tasks.ParseDueDate(*args.DueDate)
		if err != nil {
			return "", &Failure{Message: "Error: Invalid date format.", Err: err}
		}
		p.DueDate = &due
	}

	if _, err := env.Tasks.Update(ctx, env.UserID, args.TaskID, p); err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			return "", failf("Error: Task %d not found.", args.TaskID)
		}
		return "", &Failure{Message: "Error updating task: " + err.Error(), Err: err}
	}
	return fmt.Sprintf("Task %d updated.", args.TaskID), nil
}

func deleteTask(ctx context.Context, env Env, args taskIDArgs) (string, error) {
	if err := env.Tasks.Delete(ctx, env.UserID, args.TaskID); err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			return "", failf("Error: Task %d not found.", args.TaskID)
		}
		return "", &Failure{Message: "Error deleting task: " + err.Error(), Err: err}
	}
	return fmt.Sprintf("Task %d deleted.", args.TaskID), nil
}
