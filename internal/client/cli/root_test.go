package cli

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/api/authv1"
	"github.com/dmitrijs2005/gatekeeper/internal/client/config"
	"github.com/dmitrijs2005/gatekeeper/internal/client/session"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	calls     []string
	password  string
	verifyBy  string
	closed    bool
	signupErr error
}

func (f *fakeService) Signup(_ context.Context, identity, password string) (*authv1.SignupResponse, error) {
	f.calls = append(f.calls, "signup:"+identity)
	f.password = password
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	return &authv1.SignupResponse{UserID: "u1", Status: "unverified"}, nil
}
func (f *fakeService) Verify(_ context.Context, userID, identity, code string) (*authv1.VerifyResponse, error) {
	f.verifyBy = userID + "|" + identity + "|" + code
	return &authv1.VerifyResponse{UserID: "u1", Status: "verified"}, nil
}
func (f *fakeService) ResendCode(context.Context, string) error { return common.ErrRateLimited }
func (f *fakeService) Login(_ context.Context, identity, password string) (*session.Session, error) {
	f.password = password
	return &session.Session{Identity: identity, AccessExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}
func (f *fakeService) Refresh(context.Context) (*authv1.TokenPair, error) {
	return &authv1.TokenPair{}, nil
}
func (f *fakeService) Logout(context.Context) error {
	f.calls = append(f.calls, "logout")
	return nil
}
func (f *fakeService) WhoAmI(context.Context) (*authv1.WhoAmIResponse, error) {
	return &authv1.WhoAmIResponse{UserID: "u1", Identity: "a@x.com", Role: "user", Status: "verified"}, nil
}
func (f *fakeService) RequestPasswordReset(context.Context, string) error { return nil }
func (f *fakeService) ResetPassword(_ context.Context, identity, code, pw string) error {
	f.calls = append(f.calls, "reset:"+identity+":"+code)
	f.password = pw
	return nil
}
func (f *fakeService) ListUsers(_ context.Context, status string, offset, limit int) (*authv1.ListUsersResponse, error) {
	f.calls = append(f.calls, fmt.Sprintf("list:%s:%d:%d", status, offset, limit))
	return &authv1.ListUsersResponse{
		Users: []authv1.User{{UserID: "u2", Identity: "b@x.com", Role: "user", Status: "verified", Active: true}},
		Total: 7,
	}, nil
}
func (f *fakeService) GetUser(_ context.Context, userID string) (*authv1.User, error) {
	return &authv1.User{UserID: userID, Identity: "b@x.com", Role: "user", Active: true}, nil
}
func (f *fakeService) DeleteUser(_ context.Context, userID string) error {
	if userID == "u1" {
		return common.ErrForbidden
	}
	f.calls = append(f.calls, "delete:"+userID)
	return nil
}
func (f *fakeService) SetUserActive(_ context.Context, userID string, active bool) (*authv1.User, error) {
	f.calls = append(f.calls, fmt.Sprintf("active:%s:%t", userID, active))
	return &authv1.User{UserID: userID, Active: active}, nil
}
func (f *fakeService) SetUserRole(_ context.Context, userID, role string) (*authv1.User, error) {
	f.calls = append(f.calls, "role:"+userID+":"+role)
	return &authv1.User{UserID: userID, Role: role, Active: true}, nil
}
func (f *fakeService) Ping(context.Context) error { return nil }
func (f *fakeService) Close() error               { f.closed = true; return nil }

func run(t *testing.T, svc *fakeService, stdin string, args ...string) (string, *App, error) {
	t.Helper()
	fakeTerminal(t, false, "", nil)

	var out bytes.Buffer
	app := NewApp(strings.NewReader(stdin), &out)
	app.connect = func(context.Context, *config.Config) (authService, func(), error) {
		return svc, func() { _ = svc.Close() }, nil
	}

	root := app.NewRootCommand(&cobra.Command{Use: "noop", RunE: func(*cobra.Command, []string) error { return nil }})
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), app, err
}

func TestSignup(t *testing.T) {
	svc := &fakeService{}
	out, _, err := run(t, svc, "pw\npw\n", "signup", "a@x.com")
	require.NoError(t, err)
	assert.Contains(t, out, "user_id: u1")
	assert.Equal(t, "pw", svc.password)
	assert.True(t, svc.closed)
}

func TestSignup_PasswordMismatch(t *testing.T) {
	svc := &fakeService{}
	_, _, err := run(t, svc, "pw\nother\n", "signup", "a@x.com")
	assert.ErrorIs(t, err, errPasswordMismatch)
	assert.Empty(t, svc.calls)
}

func TestSignup_ServiceError(t *testing.T) {
	svc := &fakeService{signupErr: common.ErrConflict}
	_, _, err := run(t, svc, "pw\npw\n", "signup", "a@x.com")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestVerify(t *testing.T) {
	svc := &fakeService{}
	_, _, err := run(t, svc, "", "verify", "123456")
	assert.ErrorIs(t, err, errVerifyTarget)

	out, _, err := run(t, svc, "", "verify", "--identity", "a@x.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, "|a@x.com|123456", svc.verifyBy)
	assert.Contains(t, out, "status: verified")
}

func TestLoginAndWhoAmI(t *testing.T) {
	svc := &fakeService{}
	out, _, err := run(t, svc, "secret\n", "login", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "secret", svc.password)
	assert.Contains(t, out, "logged in as a@x.com")

	out, _, err = run(t, svc, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "role: user")
}

func TestResend_Error(t *testing.T) {
	_, _, err := run(t, &fakeService{}, "", "resend", "u1")
	assert.ErrorIs(t, err, common.ErrRateLimited)
}

func TestReset(t *testing.T) {
	svc := &fakeService{}
	out, _, err := run(t, svc, "n3w\nn3w\n", "reset", "a@x.com", "654321")
	require.NoError(t, err)
	assert.Equal(t, []string{"reset:a@x.com:654321"}, svc.calls)
	assert.Equal(t, "n3w", svc.password)
	assert.Contains(t, out, "sessions revoked")
}

func TestFlagsOverrideConfig(t *testing.T) {
	_, app, err := run(t, &fakeService{}, "", "--server", "10.1.1.1:9", "--timeout", "2s", "ping")
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1:9", app.config.ServerEndpointAddr)
	assert.Equal(t, 2*time.Second, app.config.RequestTimeout)
}

func TestExtraCommandsAttached(t *testing.T) {
	_, _, err := run(t, &fakeService{}, "", "noop")
	require.NoError(t, err)
}

func TestLogout(t *testing.T) {
	svc := &fakeService{}
	out, _, err := run(t, svc, "", "logout")
	require.NoError(t, err)
	assert.Equal(t, []string{"logout"}, svc.calls)
	assert.Contains(t, out, "logged out")
}

func TestUsersCommands(t *testing.T) {
	svc := &fakeService{}

	out, app, err := run(t, svc, "", "--server", "10.1.1.1:9", "users", "list", "--status", "verified", "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1:9", app.config.ServerEndpointAddr, "config loaded for nested commands")
	assert.Contains(t, out, "u2\tb@x.com\tuser\tverified\tactive=true")
	assert.Contains(t, out, "total: 7")

	out, _, err = run(t, svc, "", "users", "get", "u2")
	require.NoError(t, err)
	assert.Contains(t, out, "identity: b@x.com")

	_, _, err = run(t, svc, "", "users", "deactivate", "u2")
	require.NoError(t, err)
	out, _, err = run(t, svc, "", "users", "activate", "u2")
	require.NoError(t, err)
	assert.Contains(t, out, "active: true")

	out, _, err = run(t, svc, "", "users", "role", "u2", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "role: admin")

	out, _, err = run(t, svc, "", "users", "delete", "u2")
	require.NoError(t, err)
	assert.Contains(t, out, "user u2 deleted")

	_, _, err = run(t, svc, "", "users", "delete", "u1")
	assert.ErrorIs(t, err, common.ErrForbidden)

	assert.Equal(t, []string{
		"list:verified:0:5", "active:u2:false", "active:u2:true", "role:u2:admin", "delete:u2",
	}, svc.calls)

	_, _, err = run(t, svc, "", "users", "role", "u2")
	assert.Error(t, err)
}
