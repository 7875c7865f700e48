package models

import "time"

// User is a local account bound to one federated identity
// Maps to: users table (one row per federated_id within a partition)
type User struct {
	ID string `db:"id" json:"id"`

	Email string `db:"email" json:"email"`

	// Immutable natural key issued by the identity provider
	FederatedID string `db:"federated_id" json:"federated_id"`

	// Latest access token the provider issued; never rendered
	AccessToken string `db:"access_token" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Profile is what the identity provider reports about the caller
type Profile struct {
	ID     string
	Emails []string
}

// Token is the credential pair returned by the code exchange
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}
