// Package grpc exposes the session lifecycle over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gatekeeper/internal/api/authv1"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"google.golang.org/grpc"
)

type userService interface {
	Signup(ctx context.Context, identity, password string) (*models.User, error)
	Verify(ctx context.Context, userID, code string) (*models.User, error)
	VerifyIdentity(ctx context.Context, identity, code string) (*models.User, error)
	ResendCode(ctx context.Context, userID string) error
	Login(ctx context.Context, identity, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	RequestPasswordReset(ctx context.Context, identity string) error
	ResetPassword(ctx context.Context, identity, code, newPassword string) error
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
	Get(ctx context.Context, userID string) (*models.User, error)

	ListUsers(ctx context.Context, actorID string, f users.ListFilter) (*services.UserPage, error)
	GetUser(ctx context.Context, actorID, userID string) (*models.User, error)
	DeleteUser(ctx context.Context, actorID, userID string) error
	SetUserActive(ctx context.Context, actorID, userID string, active bool) (*models.User, error)
	SetUserRole(ctx context.Context, actorID, userID string, role models.Role) (*models.User, error)
}

type GRPCServer struct {
	authv1.UnimplementedAuthServiceServer
	address string
	users   userService
	metrics *metrics.Metrics
	logger  logging.Logger
}

// NewGRPCServer wires the handlers to us. mx may be nil.
func NewGRPCServer(a string, l logging.Logger, us userService, mx *metrics.Metrics) *GRPCServer {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		users:   us,
		metrics: mx,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.metricsInterceptor, s.accessTokenInterceptor))
	authv1.RegisterAuthServiceServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
