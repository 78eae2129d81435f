package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/api"
	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/workflow"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

// ErrorDomain is the ErrorInfo domain of structured errors.
const ErrorDomain = "gradekeeper"

// RetryDelay is suggested to clients after a concurrency conflict.
const RetryDelay = 100 * time.Millisecond

// toStatus maps a service error to a gRPC status. Unknown errors are logged
// and reported as a bare Internal.
func toStatus(ctx context.Context, log logging.Logger, err error) error {
	var ite *workflow.InvalidTransitionError

	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrCredentialMissing):
		return status.Error(codes.Unauthenticated, "missing credential")
	case errors.Is(err, common.ErrCredentialInvalid), errors.Is(err, common.ErrPrincipalNotFound):
		return status.Error(codes.Unauthenticated, "invalid or expired credential")
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "invalid email or password")
	case errors.Is(err, common.ErrPermissionDenied), errors.Is(err, common.ErrSchoolAccessDenied):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, common.ErrResourceNotFoundOrDenied):
		return status.Error(codes.NotFound, "not found")
	case errors.As(err, &ite):
		st, derr := status.New(codes.FailedPrecondition, ite.Error()).WithDetails(&errdetails.ErrorInfo{
			Reason: "INVALID_TRANSITION",
			Domain: ErrorDomain,
			Metadata: map[string]string{
				"from":      string(ite.From),
				"attempted": string(ite.To),
				"valid":     strings.Join(api.StatusNames(ite.Valid), ","),
			},
		})
		if derr != nil {
			return status.Error(codes.FailedPrecondition, ite.Error())
		}
		return st.Err()
	case errors.Is(err, common.ErrConcurrencyConflict):
		st, derr := status.New(codes.Aborted, "concurrency conflict, retry").WithDetails(&errdetails.RetryInfo{
			RetryDelay: durationpb.New(RetryDelay),
		})
		if derr != nil {
			return status.Error(codes.Aborted, "concurrency conflict, retry")
		}
		return st.Err()
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	default:
		log.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
