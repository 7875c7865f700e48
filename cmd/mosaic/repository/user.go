package repository

import (
	"context"
	"errors"

	"github.com/mosaic/creator/cmd/mosaic/models"
)

var (
	// ErrConflict is returned by Insert when a user with the same
	// federated id already exists
	ErrConflict = errors.New("user already exists")

	// ErrUnknownAttribute is returned for lookups on unindexed attributes
	ErrUnknownAttribute = errors.New("unknown user attribute")

	// ErrUserNotFound is returned when updating a user that does not exist
	ErrUserNotFound = errors.New("user not found")
)

// Queryable user attributes
const (
	AttrFederatedID = "federated_id"
	AttrEmail       = "email"
)

// UserStore persists users. At most one user exists per federated id; the
// store enforces it so concurrent inserts cannot create duplicates.
type UserStore interface {
	// FindByAttribute returns every user whose attribute equals value.
	// Order is not significant.
	FindByAttribute(ctx context.Context, attribute, value string) ([]models.User, error)

	// Insert creates the user and fills in ID and CreatedAt. It fails with
	// ErrConflict when the federated id is taken.
	Insert(ctx context.Context, user *models.User) (string, error)

	// InsertIfAbsent creates the user unless one with the same federated id
	// exists, in which case the existing record is returned with created=false.
	InsertIfAbsent(ctx context.Context, user models.User) (stored models.User, created bool, err error)

	// UpdateAccessToken overwrites the stored access token
	UpdateAccessToken(ctx context.Context, id, accessToken string) error
}
