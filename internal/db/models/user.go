// Package models - user.go defines the User model for plugin authors.
// Credential issuance and session handling live outside this service; the
// marketplace only resolves an API token to an author identity.
package models

import "time"

// User represents a plugin author
type User struct {
	ID          string    `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	DisplayName *string   `json:"display_name,omitempty" db:"display_name"`
	APIToken    string    `json:"-" db:"api_token"` // Never serialized in responses
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
