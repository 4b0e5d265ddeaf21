package tools

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/nugget/tick/internal/database"
	"github.com/nugget/tick/internal/tasks"
)

func newTestEnv(t *testing.T, userID string) (*Registry, Env) {
	t.Helper()
	db, err := database.Open(t.Context(), "sqlite", filepath.Join(t.TempDir(), "tools_test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r, err := NewRegistry(nil)
	require.NoError(t, err)
	return r, Env{UserID: userID, Tasks: tasks.NewStore(db)}
}

// exec runs a call and renders errors the way the agent loop does.
func exec(t *testing.T, r *Registry, env Env, name, args string) string {
	t.Helper()
	out, err := r.Execute(t.Context(), env, name, args)
	if err != nil {
		return ErrorResult(name, err)
	}
	return out
}

func TestCatalog(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	cat := r.Catalog()
	require.Len(t, cat, 5)
	names := make([]string, len(cat))
	for i, tool := range cat {
		assert.Equal(t, "function", tool.Type)
		assert.NotEmpty(t, tool.Function.Description)
		assert.Equal(t, "object", tool.Function.Parameters["type"])
		names[i] = tool.Function.Name
	}
	assert.Equal(t, []string{"add_task", "list_tasks", "update_task", "complete_task", "delete_task"}, names)

	// The catalog must survive the trip to the provider.
	_, err = json.Marshal(cat)
	require.NoError(t, err)
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions {
		got, err := ParseAction(string(a))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}

	_, err := ParseAction("get_weather")
	var unknown *ErrUnknownTool
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "get_weather", unknown.Name)
}

func TestAddThenList(t *testing.T) {
	r, env := newTestEnv(t, "alice")

	out := exec(t, r, env, "add_task", `{"title": "buy milk", "due_date": "2026-03-01", "priority": "high"}`)
	assert.JSONEq(t, `{"status": "success", "task": {"id": 1, "title": "buy milk"}}`, out)
	assert.Equal(t, `{"status": "success", "task": {"id": 1, "title": "buy milk"}}`, out)

	out = exec(t, r, env, "add_task", `{"title": "call mom"}`)
	assert.Contains(t, out, `"id": 2`)

	out = exec(t, r, env, "list_tasks", `{}`)
	assert.Equal(t,
		`[{"id": 2, "title": "call mom", "completed": false, "priority": "medium", "due_date": null}, `+
			`{"id": 1, "title": "buy milk", "completed": false, "priority": "high", "due_date": "2026-03-01"}]`,
		out)
}

func TestListEmpty(t *testing.T) {
	r, env := newTestEnv(t, "alice")
	assert.Equal(t, "[]", exec(t, r, env, "list_tasks", ""))
}

func TestListFiltersAndLimit(t *testing.T) {
	r, env := newTestEnv(t, "alice")
	for _, title := range []string{"a", "b", "c"} {
		exec(t, r, env, "add_task", `{"title": "`+title+`"}`)
	}
	assert.Equal(t, "Task 1 updated.", exec(t, r, env, "complete_task", `{"task_id": 1}`))

	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(exec(t, r, env, "list_tasks", `{"status": "completed"}`)), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0]["title"])

	require.NoError(t, json.Unmarshal([]byte(exec(t, r, env, "list_tasks", `{"status": "pending", "limit": 1}`)), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0]["title"])
}

func TestBadDates(t *testing.T) {
	r, env := newTestEnv(t, "alice")

	assert.Equal(t, "Error: Invalid date format. Use YYYY-MM-DD.",
		exec(t, r, env, "add_task", `{"title": "x", "due_date": "next monday"}`))
	assert.Equal(t, "[]", exec(t, r, env, "list_tasks", `{}`), "failed add must not create a task")

	exec(t, r, env, "add_task", `{"title": "x"}`)
	assert.Equal(t, "Error: Invalid date format.",
		exec(t, r, env, "update_task", `{"task_id": 1, "due_date": "03/01/2026"}`))
}

func TestUpdateOnlySuppliedFields(t *testing.T) {
	r, env := newTestEnv(t, "alice")
	exec(t, r, env, "add_task", `{"title": "buy milk", "description": "2%", "priority": "low"}`)

	assert.Equal(t, "Task 1 updated.", exec(t, r, env, "update_task", `{"task_id": 1, "title": "buy oat milk"}`))

	got, err := env.Tasks.(*tasks.Store).Get(t.Context(), "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, "buy oat milk", got.Title)
	assert.Equal(t, "2%", got.Description)
	assert.Equal(t, tasks.PriorityLow, got.Priority)
	assert.False(t, got.Completed)
}

func TestNullOptionalArgumentsAreOmitted(t *testing.T) {
	r, env := newTestEnv(t, "alice")

	assert.Equal(t, `{"status": "success", "task": {"id": 1, "title": "buy milk"}}`,
		exec(t, r, env, "add_task", `{"title": "buy milk", "description": null, "due_date": null, "priority": null}`))

	assert.Equal(t, "Task 1 updated.",
		exec(t, r, env, "update_task", `{"task_id": 1, "title": null, "completed": true, "priority": null, "due_date": null}`))

	got, err := env.Tasks.(*tasks.Store).Get(t.Context(), "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, "buy milk", got.Title)
	assert.True(t, got.Completed)
	assert.Equal(t, tasks.PriorityMedium, got.Priority)
	assert.Nil(t, got.DueDate)

	assert.Equal(t,
		`[{"id": 1, "title": "buy milk", "completed": true, "priority": "medium", "due_date": null}]`,
		exec(t, r, env, "list_tasks", `{"status": null, "limit": null}`))
}

func TestListLimitZeroIsEmpty(t *testing.T) {
	r, env := newTestEnv(t, "alice")
	exec(t, r, env, "add_task", `{"title": "a"}`)

	assert.Equal(t, "[]", exec(t, r, env, "list_tasks", `{"limit": 0}`))
	assert.Equal(t, "[]", exec(t, r, env, "list_tasks", `{"limit": -5}`))
	assert.Contains(t, exec(t, r, env, "list_tasks", `{}`), `"title": "a"`)
}

func TestUpdatePriorityCheckedByHandler(t *testing.T) {
	r, env := newTestEnv(t, "alice")
	exec(t, r, env, "add_task", `{"title": "a"}`)

	assert.Equal(t, "Task 1 updated.", exec(t, r, env, "update_task", `{"task_id": 1, "priority": "high"}`))
	assert.Equal(t, `Error updating task: invalid priority "urgent" (valid: low, medium, high)`,
		exec(t, r, env, "update_task", `{"task_id": 1, "priority": "urgent"}`))

	got, err := env.Tasks.(*tasks.Store).Get(t.Context(), "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, tasks.PriorityHigh, got.Priority)
}

func TestOwnership(t *testing.T) {
	r, alice := newTestEnv(t, "alice")
	bob := Env{UserID: "bob", Tasks: alice.Tasks}

	exec(t, r, alice, "add_task", `{"title": "secret"}`)

	assert.Equal(t, "[]", exec(t, r, bob, "list_tasks", `{}`))
	assert.Equal(t, "Error: Task 1 not found.", exec(t, r, bob, "update_task", `{"task_id": 1, "title": "mine"}`))
	assert.Equal(t, "Error: Task 1 not found.", exec(t, r, bob, "complete_task", `{"task_id": 1}`))
	assert.Equal(t, "Error: Task 1 not found.", exec(t, r, bob, "delete_task", `{"task_id": 1}`))

	assert.Equal(t, "Task 1 deleted.", exec(t, r, alice, "delete_task", `{"task_id": 1}`))
	assert.Equal(t, "Error: Task 1 not found.", exec(t, r, alice, "delete_task", `{"task_id": 1}`))
}

func TestArgumentErrors(t *testing.T) {
	r, env := newTestEnv(t, "alice")

	tests := []struct {
		name string
		tool string
		args string
		want string
	}{
		{"unknown tool", "get_weather", `{}`, "Error: Tool get_weather not found."},
		{"not json", "add_task", `{"title": `, "Error executing tool add_task: invalid arguments"},
		{"missing required", "add_task", `{}`, "Error executing tool add_task: invalid arguments"},
		{"wrong type", "delete_task", `{"task_id": "three"}`, "Error executing tool delete_task: invalid arguments"},
		{"bad enum", "list_tasks", `{"status": "overdue"}`, "Error executing tool list_tasks: invalid arguments"},
		{"null required", "add_task", `{"title": null}`, "Error executing tool add_task: invalid arguments"},
		{"null task id", "delete_task", `{"task_id": null}`, "Error executing tool delete_task: invalid arguments"},
		{"not an object", "list_tasks", `[1, 2]`, "Error executing tool list_tasks: invalid arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, exec(t, r, env, tt.tool, tt.args), tt.want)
		})
	}

	_, err := r.Execute(t.Context(), env, "add_task", `{}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

type failingStore struct {
	TaskStore
	err error
}

func (f failingStore) Create(context.Context, *tasks.Task) error { return f.err }
func (f failingStore) List(context.Context, string, tasks.ListOptions) ([]tasks.Task, error) {
	return nil, f.err
}

func TestStoreFailure(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	env := Env{UserID: "alice", Tasks: failingStore{err: errors.New("disk I/O error")}}

	assert.Equal(t, "Error creating task: disk I/O error", exec(t, r, env, "add_task", `{"title": "x"}`))
	assert.Equal(t, "Error listing tasks: disk I/O error", exec(t, r, env, "list_tasks", `{}`))

	_, err = r.Execute(t.Context(), env, "add_task", `{"title": "x"}`)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.EqualError(t, failure.Unwrap(), "disk I/O error")
}
