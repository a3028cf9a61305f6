// Package services contains the client-side application services used by
// the CLI. AuthService pairs the remote client with the local session store
// so a login survives between invocations.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/api/authv1"
	"github.com/dmitrijs2005/gatekeeper/internal/client/client"
	"github.com/dmitrijs2005/gatekeeper/internal/client/session"
)

type SessionStore interface {
	Save(ctx context.Context, s *session.Session) error
	Load(ctx context.Context) (*session.Session, error)
	UpdateTokens(ctx context.Context, access, refresh string, accessExp, refreshExp time.Time) error
	Clear(ctx context.Context) error
}

type AuthService struct {
	client client.Client
	store  SessionStore
}

// NewAuthService binds c to store. Tokens rotated by c, including the
// transparent refresh on an expired access token, are written back to store.
func NewAuthService(c client.Client, store SessionStore) *AuthService {
	a := &AuthService{client: c, store: store}
	c.OnTokensRefreshed(func(p *authv1.TokenPair) {
		_ = store.UpdateTokens(context.Background(), p.AccessToken, p.RefreshToken, p.AccessExpiresAt, p.RefreshExpiresAt)
	})
	return a
}

// restore loads the saved tokens into the client.
func (a *AuthService) restore(ctx context.Context) (*session.Session, error) {
	sess, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	a.client.SetTokens(sess.AccessToken, sess.RefreshToken)
	return sess, nil
}

func (a *AuthService) Signup(ctx context.Context, identity, password string) (*authv1.SignupResponse, error) {
	return a.client.Signup(ctx, identity, password)
}

func (a *AuthService) Verify(ctx context.Context, userID, identity, code string) (*authv1.VerifyResponse, error) {
	return a.client.Verify(ctx, userID, identity, code)
}

func (a *AuthService) ResendCode(ctx context.Context, userID string) error {
	return a.client.ResendCode(ctx, userID)
}

// Login authenticates and saves the new session. The user ID is looked up
// with WhoAmI; failing that lookup does not fail the login.
func (a *AuthService) Login(ctx context.Context, identity, password string) (*session.Session, error) {
	pair, err := a.client.Login(ctx, identity, password)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		Identity:         identity,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
	if me, err := a.client.WhoAmI(ctx); err == nil {
		sess.UserID = me.UserID
		sess.Identity = me.Identity
	}

	if err := a.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (a *AuthService) Refresh(ctx context.Context) (*authv1.TokenPair, error) {
	if _, err := a.restore(ctx); err != nil {
		return nil, err
	}
	return a.client.Refresh(ctx)
}

// Logout revokes the saved refresh token and forgets the session. Without a
// saved session it is a no-op.
func (a *AuthService) Logout(ctx context.Context) error {
	if _, err := a.restore(ctx); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil
		}
		return err
	}
	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	return a.store.Clear(ctx)
}

func (a *AuthService) WhoAmI(ctx context.Context) (*authv1.WhoAmIResponse, error) {
	if _, err := a.restore(ctx); err != nil {
		return nil, err
	}
	return a.client.WhoAmI(ctx)
}

func (a *AuthService) RequestPasswordReset(ctx context.Context, identity string) error {
	return a.client.RequestPasswordReset(ctx, identity)
}

// ResetPassword sets a new password. The server revokes every session of
// the account, so the local one is dropped too.
func (a *AuthService) ResetPassword(ctx context.Context, identity, code, newPassword string) error {
	if err := a.client.ResetPassword(ctx, identity, code, newPassword); err != nil {
		return err
	}
	return a.store.Clear(ctx)
}

func (a *AuthService) ListUsers(ctx context.Context, status string, offset, limit int) (*authv1.ListUsersResponse, error) {
	if _, err := a.restore(ctx); err != nil {
		return nil, err
	}
	return a.client.ListUsers(ctx, status, offset, limit)
}

func (a *AuthService) GetUser(ctx context.Context, userID string) (*authv1.User, error) {
	if _, err := a.restore(ctx); err != nil {
		return nil, err
	}
	return a.client.GetUser(ctx, userID)
}

func (a *AuthService) DeleteUser(ctx context.Context, userID string) error {
	if _, err := a.restore(ctx); err != nil {
		return err
	}
	return a.client.DeleteUser(ctx, userID)
}

// SetUserActive enables or disables an account. Disabling the logged-in
// account also drops the local session, which the server has revoked.
func (a *AuthService) SetUserActive(ctx context.Context, userID string, active bool) (*authv1.User, error) {
	sess, err := a.restore(ctx)
	if err != nil {
		return nil, err
	}
	u, err := a.client.SetUserActive(ctx, userID, active)
	if err != nil {
		return nil, err
	}
	if !active && sess.UserID == userID {
		if err := a.store.Clear(ctx); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (a *AuthService) SetUserRole(ctx context.Context, userID, role string) (*authv1.User, error) {
	if _, err := a.restore(ctx); err != nil {
		return nil, err
	}
	return a.client.SetUserRole(ctx, userID, role)
}

func (a *AuthService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *AuthService) Close() error {
	return a.client.Close()
}
