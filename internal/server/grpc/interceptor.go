package grpc

import (
	"context"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/principal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// publicMethods can be called without an access credential.
var publicMethods = map[string]bool{
	FullMethod(MethodLogin):        true,
	FullMethod(MethodRefreshToken): true,
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(common.AuthorizationHeaderName)
	if len(values) == 0 {
		return ""
	}
	return common.BearerToken(values[0])
}

// accessTokenInterceptor authenticates every non-public call and stores the
// caller's Principal in the context.
func (s *Server) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	p, err := s.auth.Authenticate(ctx, bearerFromMetadata(ctx))
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}

	ctx = logging.ContextWith(ctx, "user_id", p.UserID, "school_id", p.SchoolID)
	return handler(principal.WithPrincipal(ctx, p), req)
}
