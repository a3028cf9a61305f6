package grpc

import (
	"context"
	"path"

	"github.com/dmitrijs2005/gatekeeper/internal/api/authv1"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// protected lists the methods that need a valid access token.
var protected = map[string]bool{
	authv1.FullMethod("WhoAmI"):        true,
	authv1.FullMethod("ListUsers"):     true,
	authv1.FullMethod("GetUser"):       true,
	authv1.FullMethod("DeleteUser"):    true,
	authv1.FullMethod("SetUserActive"): true,
	authv1.FullMethod("SetUserRole"):   true,
}

// ClaimsFromContext returns the claims the interceptor attached, if any.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if protected[info.FullMethod] {

		var accessToken string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			values := md.Get(common.AccessTokenHeaderName)
			if len(values) > 0 {
				accessToken = values[0]
			}
		}
		if len(accessToken) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		claims, err := s.users.Authenticate(ctx, accessToken)
		if err != nil {
			return nil, s.toStatus(ctx, info.FullMethod, err)
		}

		ctx = context.WithValue(ctx, claimsKey, claims)
	}

	return handler(ctx, req)
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	s.metrics.ObserveRPC(path.Base(info.FullMethod), status.Code(err).String())
	return resp, err
}
