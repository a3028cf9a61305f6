// Package users is the credential store: persistence of accounts, their
// password hashes, roles and verification state.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// ListFilter selects users for List and Count. An empty Status matches
// every user.
type ListFilter struct {
	Status models.Status
	Offset int
	Limit  int
}

// Repository defines the credential store operations. Implementations return
// common.ErrNotFound for absent rows and common.ErrConflict when an identity
// is already taken.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIdentity(ctx context.Context, identity string) (*models.User, error)

	// MarkVerified flips an unverified user to verified. It returns
	// common.ErrNotFound when no unverified user with this id exists.
	MarkVerified(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id string, hash string) error

	// SetActive and SetRole return common.ErrNotFound for a missing user.
	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id string, role models.Role) error

	// List returns one page of users matching f, newest first; Count
	// returns how many match f in total.
	List(ctx context.Context, f ListFilter) ([]*models.User, error)
	Count(ctx context.Context, f ListFilter) (int, error)

	// Delete removes the user. Deleting a missing user is not an error.
	Delete(ctx context.Context, id string) error

	// ListUnverifiedCreatedBefore returns up to limit unverified, non-admin
	// users created strictly before cutoff, oldest first.
	ListUnverifiedCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.User, error)

	// DeleteUnverifiedCreatedBefore deletes the user only if it is still
	// unverified, non-admin and created before cutoff. It reports whether a
	// row was deleted.
	DeleteUnverifiedCreatedBefore(ctx context.Context, id string, cutoff time.Time) (bool, error)
}
