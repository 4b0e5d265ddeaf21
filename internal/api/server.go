// Package api implements the Tick HTTP API.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/tick/internal/agent"
	"github.com/nugget/tick/internal/buildinfo"
	"github.com/nugget/tick/internal/health"
	"github.com/nugget/tick/internal/metrics"
	"github.com/nugget/tick/internal/tasks"
	"github.com/nugget/tick/internal/transcript"
	"github.com/nugget/tick/internal/users"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Chatter runs one chat turn.
type Chatter interface {
	Run(ctx context.Context, req *agent.Request) *agent.Response
}

// UserStore looks up and authenticates accounts.
type UserStore interface {
	Get(ctx context.Context, id string) (*users.User, error)
	Authenticate(ctx context.Context, email, password string) (*users.User, error)
}

// ConversationStore is the read side of the transcript store.
type ConversationStore interface {
	FindConversation(ctx context.Context, id, userID string) (*transcript.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]transcript.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]transcript.Message, error)
}

// TaskLister is the read side of the task store.
type TaskLister interface {
	List(ctx context.Context, userID string, opts tasks.ListOptions) ([]tasks.Task, error)
}

// ModelHealth reports the state of the model endpoint.
type ModelHealth interface {
	Status() health.Status
}

// Deps are the collaborators the server routes to. Metrics and Model
// may be nil.
type Deps struct {
	Chat          Chatter
	Users         UserStore
	Tokens        *users.Tokens
	Conversations ConversationStore
	Tasks         TaskLister
	Metrics       *metrics.Metrics
	Model         ModelHealth
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	deps    Deps
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		deps:    deps,
		logger:  logger,
	}
}

// Handler builds the routing tree with logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /v1/auth/token", s.handleToken)

	// Chat
	mux.Handle("POST /v1/chat", s.requireAuth(s.handleChat))
	mux.Handle("GET /v1/chat/ws", s.requireAuth(s.handleChatWS))

	// History
	mux.Handle("GET /v1/conversations", s.requireAuth(s.handleConversationList))
	mux.Handle("GET /v1/conversations/{id}", s.requireAuth(s.handleConversationGet))
	mux.Handle("GET /v1/conversations/{id}/export", s.requireAuth(s.handleConversationExport))

	// Tasks
	mux.Handle("GET /v1/tasks", s.requireAuth(s.handleTaskList))

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Chat requests wait on up to two model exchanges.
		WriteTimeout: 10 * time.Minute,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response code for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

const requestIDHeader = "X-Request-ID"

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
		s.logger.Info("request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// handleHealth always answers 200 while the process is serving. An
// unreachable model marks the status degraded; chat still answers, with
// the apology.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "healthy"}
	if s.deps.Model != nil {
		st := s.deps.Model.Status()
		resp["model"] = st
		if !st.Ready {
			resp["status"] = "degraded"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, errorBody(code, message), s.logger)
}

func errorBody(code int, message string) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    code,
		},
	}
}
