package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mosaic/creator/cmd/mosaic/models"
	"github.com/mosaic/creator/common/db"
)

// columns maps queryable attributes onto their column
var columns = map[string]string{
	AttrFederatedID: "federated_id",
	AttrEmail:       "email",
}

// PostgresUserStore keeps users in one table, scoped by a partition key
type PostgresUserStore struct {
	db        *db.DB
	table     string
	partition string
}

// NewPostgresUserStore creates a user store over table, scoped to partition
func NewPostgresUserStore(db *db.DB, table, partition string) *PostgresUserStore {
	return &PostgresUserStore{
		db:        db,
		table:     pgx.Identifier{table}.Sanitize(),
		partition: partition,
	}
}

// Migrate creates the users table and its uniqueness constraint
func (r *PostgresUserStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			partition_key TEXT NOT NULL,
			email         TEXT NOT NULL,
			federated_id  TEXT NOT NULL,
			access_token  TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (partition_key, federated_id)
		)
	`, r.table)

	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate user table: %w", err)
	}
	return nil
}

// FindByAttribute returns users whose attribute equals value
func (r *PostgresUserStore) FindByAttribute(ctx context.Context, attribute, value string) ([]models.User, error) {
	column, ok := columns[attribute]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, attribute)
	}

	query := fmt.Sprintf(`
		SELECT id::text, email, federated_id, access_token, created_at
		FROM %s
		WHERE partition_key = $1 AND %s = $2
	`, r.table, column)

	rows, err := r.db.Query(ctx, query, r.partition, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query users by %s: %w", attribute, err)
	}

	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}

	return users, nil
}

// Insert creates a new user
func (r *PostgresUserStore) Insert(ctx context.Context, user *models.User) (string, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (partition_key, email, federated_id, access_token)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, created_at
	`, r.table)

	err := r.db.QueryRow(ctx, query,
		r.partition,
		user.Email,
		user.FederatedID,
		user.AccessToken,
	).Scan(&user.ID, &user.CreatedAt)

	if db.IsUniqueViolation(err) {
		return "", fmt.Errorf("%w: federated_id %s", ErrConflict, user.FederatedID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to insert user: %w", err)
	}

	return user.ID, nil
}

// InsertIfAbsent inserts in one statement; on conflict the winner is read back
func (r *PostgresUserStore) InsertIfAbsent(ctx context.Context, user models.User) (models.User, bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (partition_key, email, federated_id, access_token)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (partition_key, federated_id) DO NOTHING
		RETURNING id::text, email, federated_id, access_token, created_at
	`, r.table)

	rows, err := r.db.Query(ctx, query,
		r.partition,
		user.Email,
		user.FederatedID,
		user.AccessToken,
	)
	if err != nil {
		return models.User{}, false, fmt.Errorf("failed to insert user: %w", err)
	}

	stored, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, false, fmt.Errorf("failed to insert user: %w", err)
	}

	// Someone else holds the federated id
	existing, err := r.FindByAttribute(ctx, AttrFederatedID, user.FederatedID)
	if err != nil {
		return models.User{}, false, err
	}
	if len(existing) == 0 {
		return models.User{}, false, fmt.Errorf("user %s vanished after insert conflict", user.FederatedID)
	}
	return existing[0], false, nil
}

// UpdateAccessToken overwrites a user's access token
func (r *PostgresUserStore) UpdateAccessToken(ctx context.Context, id, accessToken string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET access_token = $3
		WHERE partition_key = $1 AND id = $2::uuid
	`, r.table)

	tag, err := r.db.Exec(ctx, query, r.partition, id, accessToken)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.FederatedID, &u.AccessToken, &u.CreatedAt)
	return u, err
}
