package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mosaic/creator/cmd/mosaic/models"
)

// MemoryUserStore is an in-process UserStore with the same uniqueness
// guarantee as the Postgres table
type MemoryUserStore struct {
	mu    sync.Mutex
	users []models.User
}

// NewMemoryUserStore creates an empty store
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{}
}

func (r *MemoryUserStore) FindByAttribute(ctx context.Context, attribute, value string) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := columns[attribute]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, attribute)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.User
	for _, u := range r.users {
		if attributeOf(u, attribute) == value {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *MemoryUserStore) Insert(ctx context.Context, user *models.User) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookup(user.FederatedID); ok {
		return "", fmt.Errorf("%w: federated_id %s", ErrConflict, user.FederatedID)
	}
	r.add(user)
	return user.ID, nil
}

func (r *MemoryUserStore) InsertIfAbsent(ctx context.Context, user models.User) (models.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.lookup(user.FederatedID); ok {
		return existing, false, nil
	}
	r.add(&user)
	return user, true, nil
}

func (r *MemoryUserStore) UpdateAccessToken(ctx context.Context, id, accessToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.users {
		if r.users[i].ID == id {
			r.users[i].AccessToken = accessToken
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUserNotFound, id)
}

// Len returns the number of stored users
func (r *MemoryUserStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// lookup and add must be called with r.mu held
func (r *MemoryUserStore) lookup(federatedID string) (models.User, bool) {
	for _, u := range r.users {
		if u.FederatedID == federatedID {
			return u, true
		}
	}
	return models.User{}, false
}

func (r *MemoryUserStore) add(user *models.User) {
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	r.users = append(r.users, *user)
}

func attributeOf(u models.User, attribute string) string {
	switch attribute {
	case AttrFederatedID:
		return u.FederatedID
	case AttrEmail:
		return u.Email
	}
	return ""
}
