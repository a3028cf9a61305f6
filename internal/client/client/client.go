package client

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/api/authv1"
)

type Client interface {
	Close() error
	Signup(ctx context.Context, identity, password string) (*authv1.SignupResponse, error)
	Verify(ctx context.Context, userID, identity, code string) (*authv1.VerifyResponse, error)
	ResendCode(ctx context.Context, userID string) error
	Login(ctx context.Context, identity, password string) (*authv1.TokenPair, error)
	Refresh(ctx context.Context) (*authv1.TokenPair, error)
	Logout(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, identity string) error
	ResetPassword(ctx context.Context, identity, code, newPassword string) error
	WhoAmI(ctx context.Context) (*authv1.WhoAmIResponse, error)
	Ping(ctx context.Context) error
	ListUsers(ctx context.Context, status string, offset, limit int) (*authv1.ListUsersResponse, error)
	GetUser(ctx context.Context, userID string) (*authv1.User, error)
	DeleteUser(ctx context.Context, userID string) error
	SetUserActive(ctx context.Context, userID string, active bool) (*authv1.User, error)
	SetUserRole(ctx context.Context, userID, role string) (*authv1.User, error)
	SetTokens(access, refresh string)
	OnTokensRefreshed(fn func(*authv1.TokenPair))
}
