package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/upb/medins-agent/internal/authz"
)

// User represents an account of the assistant backend
type User struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Username       string     `json:"username" db:"username"`
	Email          string     `json:"email" db:"email"`
	HashedPassword string     `json:"-" db:"hashed_password"`
	FullName       string     `json:"full_name,omitempty" db:"full_name"`
	Role           authz.Role `json:"role" db:"user_role"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates an active User with a fresh ID
func NewUser(username, email, hashedPassword, fullName string, role authz.Role) *User {
	now := time.Now().UTC()
	return &User{
		ID:             uuid.New(),
		Username:       username,
		Email:          email,
		HashedPassword: hashedPassword,
		FullName:       fullName,
		Role:           role,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Identity converts the user into the identity the guard evaluates
func (u *User) Identity() *authz.Identity {
	return &authz.Identity{
		Subject:       u.ID.String(),
		Username:      u.Username,
		Role:          u.Role,
		Authenticated: true,
	}
}
