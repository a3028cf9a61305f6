// Package refreshtokens declares the store of issued refresh tokens. Tokens
// are kept by hash so they can be revoked and rotated.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.RefreshToken) error

	// Consume atomically deletes the unexpired token with the given hash and
	// returns it. A missing, expired or already consumed token yields
	// common.ErrNotFound; of two concurrent callers at most one succeeds.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error)

	// Delete revokes a token by hash. Deleting a missing token is not an error.
	Delete(ctx context.Context, tokenHash string) error

	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
