// Package verificationcodes stores the outstanding one-time verification
// codes, at most one per (user, purpose).
package verificationcodes

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type Repository interface {
	// Replace stores code as the single outstanding code for its (user,
	// purpose), invalidating any previous one. If the existing code was
	// created after notBefore the call fails with common.ErrRateLimited and
	// nothing changes.
	Replace(ctx context.Context, code *models.VerificationCode, notBefore time.Time) error

	Find(ctx context.Context, userID string, purpose models.Purpose) (*models.VerificationCode, error)

	// Consume deletes the code only if its hash still matches. It returns
	// common.ErrNotFound when the code was already consumed or replaced.
	Consume(ctx context.Context, userID string, purpose models.Purpose, codeHash string) error

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
