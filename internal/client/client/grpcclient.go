package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gatekeeper/internal/api/authv1"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      authv1.AuthServiceClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	onRefresh    func(*authv1.TokenPair)
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = access
	s.refreshToken = refresh
}

// OnTokensRefreshed registers fn to be called after every successful
// rotation, including the transparent one done by the interceptor.
func (s *GRPCClient) OnTokensRefreshed(fn func(*authv1.TokenPair)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

func (s *GRPCClient) storePair(p *authv1.TokenPair) {
	s.mu.Lock()
	s.accessToken = p.AccessToken
	s.refreshToken = p.RefreshToken
	fn := s.onRefresh
	s.mu.Unlock()

	if fn != nil {
		fn(p)
	}
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	access, refresh := s.tokens()
	if access == "" || method == authv1.FullMethod("Refresh") {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}
	if refresh == "" {
		return err
	}

	pair, rerr := s.client.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: refresh})
	if rerr != nil {
		return err
	}
	s.storePair(pair)

	// retry once with the new access token
	return invoker(withAccessToken(ctx, pair.AccessToken), method, req, reply, cc, opts...)
}

func NewGatekeeperClient(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = authv1.NewAuthServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Signup(ctx context.Context, identity, password string) (*authv1.SignupResponse, error) {
	resp, err := s.client.Signup(ctx, &authv1.SignupRequest{Identity: identity, Password: password})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Verify(ctx context.Context, userID, identity, code string) (*authv1.VerifyResponse, error) {
	resp, err := s.client.Verify(ctx, &authv1.VerifyRequest{UserID: userID, Identity: identity, Code: code})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ResendCode(ctx context.Context, userID string) error {
	_, err := s.client.ResendCode(ctx, &authv1.ResendCodeRequest{UserID: userID})
	return s.mapError(err)
}

func (s *GRPCClient) Login(ctx context.Context, identity, password string) (*authv1.TokenPair, error) {

	resp, err := s.client.Login(ctx, &authv1.LoginRequest{Identity: identity, Password: password})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.SetTokens(resp.AccessToken, resp.RefreshToken)
	return resp, nil
}

// Refresh rotates the current refresh token.
func (s *GRPCClient) Refresh(ctx context.Context) (*authv1.TokenPair, error) {
	_, refresh := s.tokens()
	if refresh == "" {
		return nil, common.ErrUnauthorized
	}

	resp, err := s.client.Refresh(ctx, &authv1.RefreshRequest{RefreshToken: refresh})
	if err != nil {
		return nil, s.mapError(err)
	}

	s.storePair(resp)
	return resp, nil
}

func (s *GRPCClient) Logout(ctx context.Context) error {
	_, refresh := s.tokens()
	if refresh == "" {
		return nil
	}

	if _, err := s.client.Logout(ctx, &authv1.LogoutRequest{RefreshToken: refresh}); err != nil {
		return s.mapError(err)
	}

	s.SetTokens("", "")
	return nil
}

func (s *GRPCClient) RequestPasswordReset(ctx context.Context, identity string) error {
	_, err := s.client.RequestPasswordReset(ctx, &authv1.RequestPasswordResetRequest{Identity: identity})
	return s.mapError(err)
}

func (s *GRPCClient) ResetPassword(ctx context.Context, identity, code, newPassword string) error {
	_, err := s.client.ResetPassword(ctx, &authv1.ResetPasswordRequest{Identity: identity, Code: code, NewPassword: newPassword})
	return s.mapError(err)
}

func (s *GRPCClient) WhoAmI(ctx context.Context) (*authv1.WhoAmIResponse, error) {
	resp, err := s.client.WhoAmI(ctx, &authv1.WhoAmIRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {

	resp, err := s.client.Ping(ctx, &authv1.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.Status != "OK" {
		return ErrUnavailable
	}

	return nil

}

func (s *GRPCClient) ListUsers(ctx context.Context, status string, offset, limit int) (*authv1.ListUsersResponse, error) {
	resp, err := s.client.ListUsers(ctx, &authv1.ListUsersRequest{Status: status, Offset: offset, Limit: limit})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) GetUser(ctx context.Context, userID string) (*authv1.User, error) {
	resp, err := s.client.GetUser(ctx, &authv1.GetUserRequest{UserID: userID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.client.DeleteUser(ctx, &authv1.DeleteUserRequest{UserID: userID})
	return s.mapError(err)
}

func (s *GRPCClient) SetUserActive(ctx context.Context, userID string, active bool) (*authv1.User, error) {
	resp, err := s.client.SetUserActive(ctx, &authv1.SetUserActiveRequest{UserID: userID, Active: active})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) SetUserRole(ctx context.Context, userID, role string) (*authv1.User, error) {
	resp, err := s.client.SetUserRole(ctx, &authv1.SetUserRoleRequest{UserID: userID, Role: role})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

// mapError recovers the server's sentinel from the status message. Transport
// failures become ErrUnavailable.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	}
	if kind := common.KindFromMessage(st.Message()); kind != nil {
		return kind
	}
	return fmt.Errorf("rpc error: %w", err)
}
