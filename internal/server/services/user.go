// Package services contains server-side business logic: the verification
// broker, the session lifecycle (UserService) and the cleanup sweep.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/identity"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/delivery"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// UserService drives an account through signup, verification and its
// sessions. Every error it returns for an expected condition matches one of
// the common sentinels.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	issuer      *auth.Issuer
	hasher      PasswordHasher
	broker      *VerificationBroker
	log         logging.Logger
	phoneRegion string
	now         func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, issuer *auth.Issuer, hasher PasswordHasher,
	broker *VerificationBroker, phoneRegion string, log logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		issuer:      issuer,
		hasher:      hasher,
		broker:      broker,
		log:         log.With("module", "users"),
		phoneRegion: phoneRegion,
		now:         time.Now,
	}
}

// Signup creates an unverified account and issues its signup code. The
// account and the code are committed together.
func (s *UserService) Signup(ctx context.Context, rawIdentity, password string) (*models.User, error) {
	id, err := identity.Normalize(rawIdentity, s.phoneRegion)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, s.storeErr(err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Identity:     id.Value,
		IdentityKind: string(id.Kind),
		PasswordHash: hash,
		Role:         models.RoleUser,
		Status:       models.StatusUnverified,
		Active:       true,
	}

	var created *models.User
	var msg *delivery.Message
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		created, err = s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return err
		}
		msg, err = s.broker.issue(ctx, tx, created, models.PurposeSignup)
		return err
	})
	if err != nil {
		return nil, s.storeErr(err)
	}

	s.broker.dispatch(ctx, msg)
	s.log.Info(ctx, "user signed up", "user_id", created.ID, "kind", created.IdentityKind)
	return created, nil
}

// Verify consumes the signup code and marks the user verified.
func (s *UserService) Verify(ctx context.Context, userID, code string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	if user.IsVerified() {
		return nil, common.ErrInvalidState
	}

	err = s.broker.Verify(ctx, user.ID, models.PurposeSignup, code, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).MarkVerified(ctx, user.ID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrInvalidState
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.storeErr(err)
	}

	user.Status = models.StatusVerified
	s.log.Info(ctx, "user verified", "user_id", user.ID)
	return user, nil
}

// VerifyIdentity is Verify addressed by the identity the user signed up with.
func (s *UserService) VerifyIdentity(ctx context.Context, rawIdentity, code string) (*models.User, error) {
	user, err := s.findByIdentity(ctx, rawIdentity)
	if err != nil {
		return nil, err
	}
	return s.Verify(ctx, user.ID, code)
}

// ResendCode issues a new signup code, subject to the resend interval.
func (s *UserService) ResendCode(ctx context.Context, userID string) error {
	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		return s.storeErr(err)
	}
	if user.IsVerified() {
		return common.ErrInvalidState
	}
	if _, err := s.broker.Generate(ctx, user, models.PurposeSignup); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// Login checks the password and opens a session. Unknown identities and
// wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, rawIdentity, password string) (*TokenPair, error) {
	user, err := s.findByIdentity(ctx, rawIdentity)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrInvalidIdentity) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, common.ErrUnauthorized
	}
	if !user.Active {
		return nil, common.ErrAccountDisabled
	}
	if !user.IsVerified() {
		return nil, common.ErrInvalidState
	}

	pair, err := s.issuePair(ctx, s.db, user)
	if err != nil {
		return nil, s.storeErr(err)
	}
	s.log.Info(ctx, "user logged in", "user_id", user.ID)
	return pair, nil
}

// Refresh rotates refreshToken: the presented token is consumed and a new
// pair is issued in the same transaction, so a token can be redeemed once.
// Every rejection matches common.ErrUnauthorized; token-level failures also
// match the token error kind.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.issuer.Validate(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// same skew allowance as the signature check above
		notAfter := s.now().Add(-s.issuer.Leeway())
		stored, err := s.repomanager.RefreshTokens(tx).Consume(ctx, common.HashToken(refreshToken), notAfter)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("%w: refresh token revoked", common.ErrUnauthorized)
			}
			return err
		}
		if stored.UserID != claims.UserID() {
			return common.ErrUnauthorized
		}

		user, err := s.repomanager.Users(tx).FindByID(ctx, stored.UserID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrUnauthorized
			}
			return err
		}
		if !user.Active {
			return common.ErrAccountDisabled
		}

		pair, err = s.issuePair(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, s.storeErr(err)
	}
	return pair, nil
}

// Logout revokes refreshToken. Revoking an unknown or already revoked token
// succeeds.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, common.HashToken(refreshToken)); err != nil {
		return s.storeErr(err)
	}
	return nil
}

// RequestPasswordReset sends a reset code to a known, active identity. It
// returns nil for unknown identities so callers cannot enumerate accounts.
func (s *UserService) RequestPasswordReset(ctx context.Context, rawIdentity string) error {
	user, err := s.findByIdentity(ctx, rawIdentity)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.Active {
		return nil
	}

	if _, err := s.broker.Generate(ctx, user, models.PurposeReset); err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			s.log.Debug(ctx, "reset code requested too soon", "user_id", user.ID)
			return nil
		}
		return s.storeErr(err)
	}
	return nil
}

// ResetPassword consumes the reset code, replaces the password and revokes
// every session of the user, all in one transaction.
func (s *UserService) ResetPassword(ctx context.Context, rawIdentity, code, newPassword string) error {
	user, err := s.findByIdentity(ctx, rawIdentity)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNoPendingCode
		}
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.storeErr(err)
	}

	err = s.broker.Verify(ctx, user.ID, models.PurposeReset, code, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return err
		}
		return s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, user.ID)
	})
	if err != nil {
		return s.storeErr(err)
	}

	s.log.Info(ctx, "password reset", "user_id", user.ID)
	return nil
}

// Authenticate validates an access token.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error) {
	claims, err := s.issuer.Validate(accessToken, auth.TokenTypeAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}
	return claims, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return user, nil
}

func (s *UserService) findByIdentity(ctx context.Context, rawIdentity string) (*models.User, error) {
	id, err := identity.Normalize(rawIdentity, s.phoneRegion)
	if err != nil {
		return nil, err
	}
	user, err := s.repomanager.Users(s.db).FindByIdentity(ctx, id.Value)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return user, nil
}

func (s *UserService) issuePair(ctx context.Context, db dbx.DBTX, user *models.User) (*TokenPair, error) {
	access, accessExp, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	grant, err := s.issuer.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}

	err = s.repomanager.RefreshTokens(db).Create(ctx, &models.RefreshToken{
		ID:        grant.ID,
		UserID:    user.ID,
		TokenHash: grant.Hash,
		ExpiresAt: grant.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     grant.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: grant.ExpiresAt,
	}, nil
}

// storeErr passes sentinel errors through and hides everything else behind
// common.ErrInternal, keeping the cause in the chain for logs.
func (s *UserService) storeErr(err error) error {
	for _, k := range common.Kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", common.ErrInternal, err)
}
