package api

import (
	"net/http"

	"github.com/nugget/tick/internal/tasks"
)

// handleTaskList lists the caller's tasks, newest first. Changes go
// through chat.
// GET /v1/tasks?status=all|completed|pending&limit=N
func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	status, err := tasks.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryLimit(r, tasks.DefaultListLimit)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	u := userFromContext(r.Context())
	list, err := s.deps.Tasks.List(r.Context(), u.ID, tasks.ListOptions{Status: status, Limit: limit})
	if err != nil {
		s.logger.Error("list tasks failed", "user", u.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not list tasks")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"tasks": list,
		"count": len(list),
	}, s.logger)
}
