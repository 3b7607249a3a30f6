package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles a user can hold.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User represents a registered account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the minimal identity record a client keeps next to its credential.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Identity returns the client-facing identity of the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID.String(), Username: u.Username, Role: u.Role}
}

// Sender returns the message sender record for the user.
func (u *User) Sender() Sender {
	return Sender{ID: u.ID.String(), Username: u.Username}
}
