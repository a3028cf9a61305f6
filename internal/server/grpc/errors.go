package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{common.ErrConflict, codes.AlreadyExists},
	{common.ErrInvalidIdentity, codes.InvalidArgument},
	{common.ErrInvalidArgument, codes.InvalidArgument},
	{common.ErrAccountDisabled, codes.PermissionDenied},
	{common.ErrForbidden, codes.PermissionDenied},
	{common.ErrRateLimited, codes.ResourceExhausted},
	{common.ErrTokenExpired, codes.Unauthenticated},
	{common.ErrTokenInvalid, codes.Unauthenticated},
	{common.ErrTokenMalformed, codes.Unauthenticated},
	{common.ErrUnauthorized, codes.Unauthenticated},
	{common.ErrInvalidState, codes.FailedPrecondition},
	{common.ErrCodeExpired, codes.FailedPrecondition},
	{common.ErrCodeMismatch, codes.FailedPrecondition},
	{common.ErrNoPendingCode, codes.FailedPrecondition},
	{common.ErrNotFound, codes.NotFound},
}

// toStatus maps a service error onto a gRPC status. The message is the text
// of the most specific sentinel so clients can recover it with
// common.KindFromMessage. Internal causes never leave the process.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrInternal) {
		s.logger.Error(ctx, "request failed", "method", method, "error", err)
		return status.Error(codes.Internal, common.ErrInternal.Error())
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return status.Error(e.code, e.err.Error())
		}
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, common.ErrInternal.Error())
}
