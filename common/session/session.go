// Package session keeps the authenticated state of a browser between
// requests. A session is created after a successful login and looked up by
// the opaque id carried in the session cookie.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the session id is unknown or expired
var ErrNotFound = errors.New("session not found")

// Session is the state attached to a logged-in browser
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	FederatedID string    `json:"federated_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Authenticated reports whether the session belongs to a resolved user
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// Store persists sessions with a fixed time to live
type Store interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// NewID returns a fresh random session id
func NewID() string {
	return uuid.NewString()
}
