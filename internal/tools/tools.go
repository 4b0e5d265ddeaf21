// Package tools implements the task actions the model may call.
//
// The set of actions is closed. Each has a JSON Schema that is offered
// to the model in the catalog and enforced on every call before the
// action body runs.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nugget/tick/internal/llm"
	"github.com/nugget/tick/internal/tasks"
)

// Action identifies one of the task actions.
type Action string

// The task actions, named as the model sees them.
const (
	ActionAdd      Action = "add_task"
	ActionList     Action = "list_tasks"
	ActionUpdate   Action = "update_task"
	ActionComplete Action = "complete_task"
	ActionDelete   Action = "delete_task"
)

// Actions lists every action in catalog order.
var Actions = []Action{ActionAdd, ActionList, ActionUpdate, ActionComplete, ActionDelete}

// ParseAction maps a function name from the model to an Action.
func ParseAction(name string) (Action, error) {
	switch a := Action(name); a {
	case ActionAdd, ActionList, ActionUpdate, ActionComplete, ActionDelete:
		return a, nil
	}
	return "", &ErrUnknownTool{Name: name}
}

// TaskStore is the slice of the task store the actions need.
type TaskStore interface {
	Create(ctx context.Context, t *tasks.Task) error
	List(ctx context.Context, userID string, opts tasks.ListOptions) ([]tasks.Task, error)
	Update(ctx context.Context, userID string, id int64, p tasks.Patch) (*tasks.Task, error)
	Delete(ctx context.Context, userID string, id int64) error
}

// Env carries the acting user and storage for one request. It is built
// once per chat request and passed to every call; actions never look
// the user up anywhere else.
type Env struct {
	UserID string
	Tasks  TaskStore
}

type definition struct {
	description string
	parameters  map[string]any
	schema      *gojsonschema.Schema
}

// Registry holds the compiled action definitions.
type Registry struct {
	defs   map[Action]*definition
	logger *slog.Logger
}

// NewRegistry compiles the parameter schemas of every action.
func NewRegistry(logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		defs:   make(map[Action]*definition, len(Actions)),
		logger: logger,
	}
	for _, a := range Actions {
		desc, params := declare(a)
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(params))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", a, err)
		}
		r.defs[a] = &definition{description: desc, parameters: params, schema: schema}
	}
	return r, nil
}

// Catalog returns the tool definitions offered to the model.
func (r *Registry) Catalog() []llm.Tool {
	out := make([]llm.Tool, 0, len(Actions))
	for _, a := range Actions {
		d := r.defs[a]
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        string(a),
				Description: d.description,
				Parameters:  d.parameters,
			},
		})
	}
	return out
}

// Execute runs the named action with the model-supplied JSON arguments.
// The returned string is the result to feed back to the model; on error
// use ErrorResult to render one.
func (r *Registry) Execute(ctx context.Context, env Env, name, argsJSON string) (string, error) {
	action, err := ParseAction(name)
	if err != nil {
		return "", err
	}

	raw := []byte(strings.TrimSpace(argsJSON))
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("%w: not valid JSON", ErrInvalidArguments)
	}
	raw, err = dropNulls(raw)
	if err != nil {
		return "", err
	}
	if err := r.validate(action, raw); err != nil {
		return "", err
	}

	start := time.Now()
	result, err := r.dispatch(ctx, env, action, raw)
	r.logger.Debug("tool executed",
		"tool", action,
		"user", env.UserID,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"error", err,
	)
	return result, err
}

// dropNulls removes top-level null arguments. Models often send null
// for optional fields they mean to leave out; a null required field
// then fails validation as missing.
func dropNulls(raw []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Not an object. Validation reports it.
		return raw, nil
	}
	dropped := false
	for k, v := range fields {
		if string(bytes.TrimSpace(v)) == "null" {
			delete(fields, k)
			dropped = true
		}
	}
	if !dropped {
		return raw, nil
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return out, nil
}

func (r *Registry) validate(a Action, raw []byte) error {
	res, err := r.defs[a].schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if !res.Valid() {
		var msgs []string
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
	}
	return nil
}

func (r *Registry) dispatch(ctx context.Context, env Env, a Action, raw []byte) (string, error) {
	switch a {
	case ActionAdd:
		var args addArgs
		if err := decode(raw, &args); err != nil {
			return "", err
		}
		return addTask(ctx, env, args)
	case ActionList:
		var args listArgs
		if err := decode(raw, &args); err != nil {
			return "", err
		}
		return listTasks(ctx, env, args)
	case ActionUpdate:
		var args updateArgs
		if err := decode(raw, &args); err != nil {
			return "", err
		}
		return updateTask(ctx, env, args)
	case ActionComplete:
		var args taskIDArgs
		if err := decode(raw, &args); err != nil {
			return "", err
		}
		done := true
		return updateTask(ctx, env, updateArgs{TaskID: args.TaskID, Completed: &done})
	case ActionDelete:
		var args taskIDArgs
		if err := decode(raw, &args); err != nil {
			return "", err
		}
		return deleteTask(ctx, env, args)
	default:
		panic(fmt.Sprintf("unhandled action %q", a))
	}
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// declare returns the description and JSON Schema parameters for a.
func declare(a Action) (string, map[string]any) {
	taskID := func(desc string) map[string]any {
		p := map[string]any{"type": "integer"}
		if desc != "" {
			p["description"] = desc
		}
		return p
	}

	switch a {
	case ActionAdd:
		return "Create a new task for the user.", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":       map[string]any{"type": "string", "description": "The task title"},
				"description": map[string]any{"type": "string", "description": "Details about the task"},
				"priority":    map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
				"due_date":    map[string]any{"type": "string", "description": "YYYY-MM-DD format"},
			},
			"required": []any{"title"},
		}
	case ActionList:
		return "Get a list of tasks, filtered by status.", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{"type": "string", "enum": []any{"all", "completed", "pending"}},
				"limit":  map[string]any{"type": "integer", "default": tasks.DefaultListLimit},
			},
		}
	case ActionUpdate:
		return "Update an existing task properties.", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id":   taskID("ID of the task to update"),
				"title":     map[string]any{"type": "string"},
				"completed": map[string]any{"type": "boolean"},
				"priority":  map[string]any{"type": "string"},
				"due_date":  map[string]any{"type": "string", "description": "YYYY-MM-DD"},
			},
			"required": []any{"task_id"},
		}
	case ActionComplete:
		return "Mark a task as completed.", map[string]any{
			"type":       "object",
			"properties": map[string]any{"task_id": taskID("")},
			"required":   []any{"task_id"},
		}
	case ActionDelete:
		return "Permanently delete a task.", map[string]any{
			"type":       "object",
			"properties": map[string]any{"task_id": taskID("")},
			"required":   []any{"task_id"},
		}
	default:
		panic(fmt.Sprintf("unhandled action %q", a))
	}
}
