package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nugget/tick/internal/export"
	"github.com/nugget/tick/internal/transcript"
)

const defaultConversationLimit = 50

// ConversationDetail is a conversation with its full transcript.
type ConversationDetail struct {
	transcript.Conversation
	Messages []transcript.Message `json:"messages"`
}

// handleConversationList lists the caller's conversations, most recently
// active first.
// GET /v1/conversations?limit=N
func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultConversationLimit)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	u := userFromContext(r.Context())
	convs, err := s.deps.Conversations.ListConversations(r.Context(), u.ID, limit)
	if err != nil {
		s.logger.Error("list conversations failed", "user", u.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not list conversations")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"conversations": convs,
		"count":         len(convs),
	}, s.logger)
}

// loadConversation resolves the {id} path value for the caller and
// writes the error response itself when it cannot.
func (s *Server) loadConversation(w http.ResponseWriter, r *http.Request) (*transcript.Conversation, []transcript.Message, bool) {
	u := userFromContext(r.Context())
	conv, err := s.deps.Conversations.FindConversation(r.Context(), r.PathValue("id"), u.ID)
	if errors.Is(err, transcript.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return nil, nil, false
	}
	if err != nil {
		s.logger.Error("find conversation failed", "user", u.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not load conversation")
		return nil, nil, false
	}

	msgs, err := s.deps.Conversations.Messages(r.Context(), conv.ID)
	if err != nil {
		s.logger.Error("load messages failed", "conversation", conv.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not load messages")
		return nil, nil, false
	}
	return conv, msgs, true
}

// handleConversationGet returns one conversation and its transcript.
// GET /v1/conversations/{id}
func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	conv, msgs, ok := s.loadConversation(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ConversationDetail{Conversation: *conv, Messages: msgs}, s.logger)
}

// handleConversationExport renders a transcript as HTML (default) or
// markdown.
// GET /v1/conversations/{id}/export?format=html|markdown
func (s *Server) handleConversationExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "html"
	}

	switch format {
	case "html", "markdown", "md":
	default:
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q (valid: html, markdown)", format))
		return
	}

	conv, msgs, ok := s.loadConversation(w, r)
	if !ok {
		return
	}

	if format == "html" {
		page, err := export.HTML(conv, msgs)
		if err != nil {
			s.logger.Error("export failed", "conversation", conv.ID, "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "export: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"conversation-%s.md\"", shortID(conv.ID)))
	fmt.Fprint(w, export.Markdown(conv, msgs))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func queryLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}
