package grpc

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/api/authv1"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func userInfo(u *models.User) *authv1.User {
	return &authv1.User{
		UserID:    u.ID,
		Identity:  u.Identity,
		Role:      string(u.Role),
		Status:    string(u.Status),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

// callerID returns the subject of the access token the interceptor checked.
func callerID(ctx context.Context) (string, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, common.ErrUnauthorized.Error())
	}
	return claims.UserID(), nil
}

func (s *GRPCServer) ListUsers(ctx context.Context, req *authv1.ListUsersRequest) (*authv1.ListUsersResponse, error) {
	actor, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	page, err := s.users.ListUsers(ctx, actor, users.ListFilter{
		Status: models.Status(req.Status),
		Offset: req.Offset,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "ListUsers", err)
	}

	resp := &authv1.ListUsersResponse{Users: make([]authv1.User, 0, len(page.Users)), Total: page.Total}
	for _, u := range page.Users {
		resp.Users = append(resp.Users, *userInfo(u))
	}
	return resp, nil
}

func (s *GRPCServer) GetUser(ctx context.Context, req *authv1.GetUserRequest) (*authv1.User, error) {
	actor, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUser(ctx, actor, req.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, "GetUser", err)
	}
	return userInfo(u), nil
}

func (s *GRPCServer) DeleteUser(ctx context.Context, req *authv1.DeleteUserRequest) (*authv1.DeleteUserResponse, error) {
	actor, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Warn(ctx, "DeleteUser request", "user_id", req.UserID, "by", actor)

	if err := s.users.DeleteUser(ctx, actor, req.UserID); err != nil {
		return nil, s.toStatus(ctx, "DeleteUser", err)
	}
	return &authv1.DeleteUserResponse{}, nil
}

func (s *GRPCServer) SetUserActive(ctx context.Context, req *authv1.SetUserActiveRequest) (*authv1.User, error) {
	actor, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.users.SetUserActive(ctx, actor, req.UserID, req.Active)
	if err != nil {
		return nil, s.toStatus(ctx, "SetUserActive", err)
	}
	return userInfo(u), nil
}

func (s *GRPCServer) SetUserRole(ctx context.Context, req *authv1.SetUserRoleRequest) (*authv1.User, error) {
	actor, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.users.SetUserRole(ctx, actor, req.UserID, models.Role(req.Role))
	if err != nil {
		return nil, s.toStatus(ctx, "SetUserRole", err)
	}
	return userInfo(u), nil
}
