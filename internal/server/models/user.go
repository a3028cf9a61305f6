// Package models defines server-side records persisted in the database.
package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Status string

const (
	StatusUnverified Status = "unverified"
	StatusVerified   Status = "verified"
)

// User is an account owned by the credential store.
type User struct {
	ID           string
	Identity     string
	IdentityKind string
	PasswordHash string
	Role         Role
	Status       Status
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) IsVerified() bool { return u.Status == StatusVerified }

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
