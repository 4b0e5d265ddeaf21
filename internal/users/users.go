// Package users stores account records and issues the bearer tokens that
// identify a caller to the chat API.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nugget/tick/internal/database"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned by Create for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// User is an account. The password hash never leaves this package.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists users in SQLite.
type Store struct {
	db   *sql.DB
	cost int
}

// NewStore wraps an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, cost: bcrypt.DefaultCost}
}

// Create registers a new user with a bcrypt-hashed password.
func (s *Store) Create(ctx context.Context, email, name, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	if name == "" {
		name = email
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	u := &User{ID: id.String(), Email: email, Name: name, CreatedAt: time.Now()}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, hashed_password, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, string(hash), database.FormatTime(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// isUniqueViolation matches the constraint message both SQLite drivers
// report.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Get returns a user by id.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
	u, _, err := s.scanOne(ctx, `SELECT id, email, name, hashed_password, created_at FROM users WHERE id = ?`, id)
	return u, err
}

// GetByEmail returns a user by email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, _, err := s.scanOne(ctx, `SELECT id, email, name, hashed_password, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	return u, err
}

// Authenticate checks an email and password pair.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, hash, err := s.scanOne(ctx, `SELECT id, email, name, hashed_password, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Store) scanOne(ctx context.Context, query string, arg any) (*User, string, error) {
	var u User
	var hash, createdAt string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Name, &hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = database.ParseTime(createdAt)
	return &u, hash, nil
}
