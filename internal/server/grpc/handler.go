package grpc

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/api/authv1"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func tokenPair(p *services.TokenPair) *authv1.TokenPair {
	return &authv1.TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func (s *GRPCServer) Signup(ctx context.Context, req *authv1.SignupRequest) (*authv1.SignupResponse, error) {

	s.logger.Info(ctx, "Signup request")

	user, err := s.users.Signup(ctx, req.Identity, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "Signup", err)
	}

	s.logger.Info(ctx, "Signed up", "user_id", user.ID)
	return &authv1.SignupResponse{UserID: user.ID, Status: string(user.Status)}, nil
}

func (s *GRPCServer) Verify(ctx context.Context, req *authv1.VerifyRequest) (*authv1.VerifyResponse, error) {

	if req.UserID == "" && req.Identity == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id or identity is required")
	}

	verify := s.users.Verify
	key := req.UserID
	if key == "" {
		verify = s.users.VerifyIdentity
		key = req.Identity
	}

	user, err := verify(ctx, key, req.Code)
	if err != nil {
		return nil, s.toStatus(ctx, "Verify", err)
	}

	return &authv1.VerifyResponse{UserID: user.ID, Status: string(user.Status)}, nil
}

func (s *GRPCServer) ResendCode(ctx context.Context, req *authv1.ResendCodeRequest) (*authv1.ResendCodeResponse, error) {
	if err := s.users.ResendCode(ctx, req.UserID); err != nil {
		return nil, s.toStatus(ctx, "ResendCode", err)
	}
	return &authv1.ResendCodeResponse{}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *authv1.LoginRequest) (*authv1.TokenPair, error) {

	tokens, err := s.users.Login(ctx, req.Identity, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, "Login", err)
	}

	return tokenPair(tokens), nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *authv1.RefreshRequest) (*authv1.TokenPair, error) {

	tokens, err := s.users.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, "Refresh", err)
	}

	return tokenPair(tokens), nil
}

func (s *GRPCServer) Logout(ctx context.Context, req *authv1.LogoutRequest) (*authv1.LogoutResponse, error) {
	if err := s.users.Logout(ctx, req.RefreshToken); err != nil {
		return nil, s.toStatus(ctx, "Logout", err)
	}
	return &authv1.LogoutResponse{}, nil
}

func (s *GRPCServer) RequestPasswordReset(ctx context.Context, req *authv1.RequestPasswordResetRequest) (*authv1.RequestPasswordResetResponse, error) {
	if err := s.users.RequestPasswordReset(ctx, req.Identity); err != nil {
		return nil, s.toStatus(ctx, "RequestPasswordReset", err)
	}
	return &authv1.RequestPasswordResetResponse{}, nil
}

func (s *GRPCServer) ResetPassword(ctx context.Context, req *authv1.ResetPasswordRequest) (*authv1.ResetPasswordResponse, error) {
	if err := s.users.ResetPassword(ctx, req.Identity, req.Code, req.NewPassword); err != nil {
		return nil, s.toStatus(ctx, "ResetPassword", err)
	}
	return &authv1.ResetPasswordResponse{}, nil
}

func (s *GRPCServer) WhoAmI(ctx context.Context, req *authv1.WhoAmIRequest) (*authv1.WhoAmIResponse, error) {

	actor, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, actor)
	if err != nil {
		return nil, s.toStatus(ctx, "WhoAmI", err)
	}

	return &authv1.WhoAmIResponse{
		UserID:   user.ID,
		Identity: user.Identity,
		Role:     string(user.Role),
		Status:   string(user.Status),
	}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *authv1.PingRequest) (*authv1.PingResponse, error) {

	return &authv1.PingResponse{Status: "OK"}, nil

}
