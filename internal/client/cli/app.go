// Package cli implements the client half of authctl: cobra commands that
// drive the AuthService and keep the session on disk between runs.
package cli

import (
	"bufio"
	"context"
	"io"

	"github.com/dmitrijs2005/gatekeeper/internal/api/authv1"
	"github.com/dmitrijs2005/gatekeeper/internal/client/client"
	"github.com/dmitrijs2005/gatekeeper/internal/client/config"
	"github.com/dmitrijs2005/gatekeeper/internal/client/services"
	"github.com/dmitrijs2005/gatekeeper/internal/client/session"
)

type authService interface {
	Signup(ctx context.Context, identity, password string) (*authv1.SignupResponse, error)
	Verify(ctx context.Context, userID, identity, code string) (*authv1.VerifyResponse, error)
	ResendCode(ctx context.Context, userID string) error
	Login(ctx context.Context, identity, password string) (*session.Session, error)
	Refresh(ctx context.Context) (*authv1.TokenPair, error)
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) (*authv1.WhoAmIResponse, error)
	RequestPasswordReset(ctx context.Context, identity string) error
	ResetPassword(ctx context.Context, identity, code, newPassword string) error
	ListUsers(ctx context.Context, status string, offset, limit int) (*authv1.ListUsersResponse, error)
	GetUser(ctx context.Context, userID string) (*authv1.User, error)
	DeleteUser(ctx context.Context, userID string) error
	SetUserActive(ctx context.Context, userID string, active bool) (*authv1.User, error)
	SetUserRole(ctx context.Context, userID, role string) (*authv1.User, error)
	Ping(ctx context.Context) error
	Close() error
}

type App struct {
	config *config.Config
	reader *bufio.Reader
	out    io.Writer

	// connect builds the service for the loaded config. Replaced in tests.
	connect func(ctx context.Context, cfg *config.Config) (authService, func(), error)
}

func NewApp(in io.Reader, out io.Writer) *App {
	return &App{
		reader:  bufio.NewReader(in),
		out:     out,
		connect: connect,
	}
}

func connect(ctx context.Context, cfg *config.Config) (authService, func(), error) {
	store, err := openSessionStore(ctx, cfg.SessionPath)
	if err != nil {
		return nil, nil, err
	}

	apiClient, err := client.NewGatekeeperClient(cfg.ServerEndpointAddr)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	svc := services.NewAuthService(apiClient, store)
	cleanup := func() {
		_ = svc.Close()
		_ = store.Close()
	}
	return svc, cleanup, nil
}
