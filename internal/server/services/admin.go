package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// UserPage is one page of ListUsers.
type UserPage struct {
	Users []*models.User
	Total int
}

// actor loads the caller behind a validated access token. The role and the
// active flag are read from the store, not from the token, so a demoted or
// deactivated account loses its rights immediately.
func (s *UserService) actor(ctx context.Context, actorID string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, s.storeErr(err)
	}
	if !u.Active {
		return nil, common.ErrAccountDisabled
	}
	return u, nil
}

func (s *UserService) admin(ctx context.Context, actorID string) (*models.User, error) {
	u, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin() {
		return nil, common.ErrForbidden
	}
	return u, nil
}

// ListUsers returns a page of accounts, newest first. Admin only.
func (s *UserService) ListUsers(ctx context.Context, actorID string, f users.ListFilter) (*UserPage, error) {
	if _, err := s.admin(ctx, actorID); err != nil {
		return nil, err
	}
	switch f.Status {
	case "", models.StatusUnverified, models.StatusVerified:
	default:
		return nil, common.ErrInvalidArgument
	}
	if f.Offset < 0 {
		return nil, common.ErrInvalidArgument
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}

	repo := s.repomanager.Users(s.db)
	list, err := repo.List(ctx, f)
	if err != nil {
		return nil, s.storeErr(err)
	}
	total, err := repo.Count(ctx, f)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return &UserPage{Users: list, Total: total}, nil
}

// GetUser returns any account to an admin and the caller's own account to
// everyone else.
func (s *UserService) GetUser(ctx context.Context, actorID, userID string) (*models.User, error) {
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if a.ID != userID && !a.IsAdmin() {
		return nil, common.ErrForbidden
	}
	return s.Get(ctx, userID)
}

// DeleteUser removes an account together with its codes and sessions. Admin
// only; an admin cannot delete itself.
func (s *UserService) DeleteUser(ctx context.Context, actorID, userID string) error {
	a, err := s.admin(ctx, actorID)
	if err != nil {
		return err
	}
	if a.ID == userID {
		return common.ErrInvalidState
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		if _, err := repo.FindByID(ctx, userID); err != nil {
			return err
		}
		if err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, userID); err != nil {
			return err
		}
		return repo.Delete(ctx, userID)
	})
	if err != nil {
		return s.storeErr(err)
	}

	s.log.Warn(ctx, "user deleted", "user_id", userID, "by", a.ID)
	return nil
}

// SetUserActive enables or disables an account. Users may disable their own
// account; anything else needs an admin. Disabling revokes every session.
func (s *UserService) SetUserActive(ctx context.Context, actorID, userID string, active bool) (*models.User, error) {
	a, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !a.IsAdmin() && (active || a.ID != userID) {
		return nil, common.ErrForbidden
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).SetActive(ctx, userID, active); err != nil {
			return err
		}
		if active {
			return nil
		}
		return s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, userID)
	})
	if err != nil {
		return nil, s.storeErr(err)
	}

	s.log.Info(ctx, "user active flag changed", "user_id", userID, "active", active, "by", a.ID)
	return s.Get(ctx, userID)
}

// SetUserRole changes an account's role. Admin only; an admin cannot demote
// itself.
func (s *UserService) SetUserRole(ctx context.Context, actorID, userID string, role models.Role) (*models.User, error) {
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, common.ErrInvalidArgument
	}
	a, err := s.admin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if a.ID == userID && role != models.RoleAdmin {
		return nil, common.ErrInvalidState
	}

	if err := s.repomanager.Users(s.db).SetRole(ctx, userID, role); err != nil {
		return nil, s.storeErr(err)
	}

	s.log.Info(ctx, "user role changed", "user_id", userID, "role", role, "by", a.ID)
	return s.Get(ctx, userID)
}
