package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/tick/internal/agent"
)

// ChatRequest is one user message.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is the assistant reply. It is also returned, carrying
// the apology, when the turn could not complete.
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

const emptyMessage = "Message cannot be empty"

func (s *Server) runChat(r *http.Request, req ChatRequest) ChatResponse {
	u := userFromContext(r.Context())
	resp := s.deps.Chat.Run(r.Context(), &agent.Request{
		User:           agent.User{ID: u.ID, Name: u.Name},
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	return ChatResponse{ConversationID: resp.ConversationID, Message: resp.Message}
}

// handleChat runs one chat turn.
// POST /v1/chat {"message": "add a task to buy milk"}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, emptyMessage)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.runChat(r, req), s.logger)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

const (
	wsWriteWait  = 10 * time.Second
	wsMaxMessage = 64 << 10
)

// handleChatWS serves chat over a websocket. Each text frame carries a
// ChatRequest and is answered with one ChatResponse frame, or an error
// frame in the HTTP error envelope. Turns on one socket run in order.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	u := userFromContext(r.Context())
	log := s.logger.With("user", u.ID, "remote", r.RemoteAddr)
	log.Debug("websocket connected")

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, websocket.ErrCloseSent) {
				log.Debug("websocket closed")
				return
			}
			if isBadJSON(err) {
				if s.writeFrame(conn, errorBody(http.StatusBadRequest, "invalid request body")) != nil {
					return
				}
				continue
			}
			log.Debug("websocket read failed", "error", err)
			return
		}

		var frame any
		if strings.TrimSpace(req.Message) == "" {
			frame = errorBody(http.StatusBadRequest, emptyMessage)
		} else {
			frame = s.runChat(r, req)
		}
		if err := s.writeFrame(conn, frame); err != nil {
			log.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// isBadJSON reports a frame that arrived intact but did not decode.
func isBadJSON(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
