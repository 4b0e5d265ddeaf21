package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/tick/internal/users"
)

type contextKey string

const userKey contextKey = "user"

// withUser adds the authenticated user to the context.
func withUser(ctx context.Context, u *users.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// userFromContext returns the authenticated user. Handlers behind
// requireAuth can rely on it being non-nil.
func userFromContext(ctx context.Context) *users.User {
	u, _ := ctx.Value(userKey).(*users.User)
	return u
}

// bearerToken extracts the token from the Authorization header, or from
// the access_token query parameter for websocket clients that cannot
// set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// requireAuth verifies the bearer token and loads the caller.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tick"`)
			s.errorResponse(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := s.deps.Tokens.Verify(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tick", error="invalid_token"`)
			s.errorResponse(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		u, err := s.deps.Users.Get(r.Context(), userID)
		if errors.Is(err, users.ErrNotFound) {
			s.errorResponse(w, http.StatusUnauthorized, "unknown user")
			return
		}
		if err != nil {
			s.logger.Error("load user failed", "user", userID, "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "could not load user")
			return
		}

		next(w, r.WithContext(withUser(r.Context(), u)))
	})
}

// TokenRequest exchanges credentials for a bearer token.
type TokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// handleToken issues a token for valid credentials.
// POST /v1/auth/token {"email": "...", "password": "..."}
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := s.deps.Users.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		s.errorResponse(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		s.logger.Error("authenticate failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	token, exp, err := s.deps.Tokens.Issue(u.ID)
	if err != nil {
		s.logger.Error("issue token failed", "user", u.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, TokenResponse{AccessToken: token, TokenType: "bearer", ExpiresAt: exp}, s.logger)
}
