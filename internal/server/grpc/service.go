package grpc

import (
	"context"

	"github.com/dmitrijs2005/gradekeeper/internal/api"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gradekeeper.v1.GradeKeeper"

// Method names.
const (
	MethodLogin                = "Login"
	MethodRefreshToken         = "RefreshToken"
	MethodLogout               = "Logout"
	MethodChangePassword       = "ChangePassword"
	MethodMe                   = "Me"
	MethodCreateAssignment     = "CreateAssignment"
	MethodGetAssignment        = "GetAssignment"
	MethodTransitionAssignment = "TransitionAssignment"
	MethodAssignmentHistory    = "AssignmentHistory"
	MethodExportEvidence       = "ExportEvidence"
)

// FullMethod returns the "/service/method" path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// GradeKeeperServer is the server API of the service.
type GradeKeeperServer interface {
	Login(context.Context, *api.LoginRequest) (*api.LoginResponse, error)
	RefreshToken(context.Context, *api.RefreshRequest) (*api.RefreshResponse, error)
	Logout(context.Context, *api.LogoutRequest) (*api.Empty, error)
	ChangePassword(context.Context, *api.ChangePasswordRequest) (*api.Empty, error)
	Me(context.Context, *api.Empty) (*api.Principal, error)
	CreateAssignment(context.Context, *api.CreateAssignmentRequest) (*api.Assignment, error)
	GetAssignment(context.Context, *api.AssignmentRef) (*api.Assignment, error)
	TransitionAssignment(context.Context, *api.TransitionRequest) (*api.Event, error)
	AssignmentHistory(context.Context, *api.AssignmentRef) (*api.HistoryResponse, error)
	ExportEvidence(context.Context, *api.AssignmentRef) (*api.EvidenceResponse, error)
}

// unary adapts a typed server method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(GradeKeeperServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(GradeKeeperServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// ServiceDesc describes GradeKeeper for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GradeKeeperServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodLogin, GradeKeeperServer.Login),
		unary(MethodRefreshToken, GradeKeeperServer.RefreshToken),
		unary(MethodLogout, GradeKeeperServer.Logout),
		unary(MethodChangePassword, GradeKeeperServer.ChangePassword),
		unary(MethodMe, GradeKeeperServer.Me),
		unary(MethodCreateAssignment, GradeKeeperServer.CreateAssignment),
		unary(MethodGetAssignment, GradeKeeperServer.GetAssignment),
		unary(MethodTransitionAssignment, GradeKeeperServer.TransitionAssignment),
		unary(MethodAssignmentHistory, GradeKeeperServer.AssignmentHistory),
		unary(MethodExportEvidence, GradeKeeperServer.ExportEvidence),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gradekeeper/v1/gradekeeper.proto",
}

// Invoke calls method on conn with the JSON codec.
func Invoke[Resp any](ctx context.Context, conn grpc.ClientConnInterface, method string, req any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append(opts, grpc.ForceCodec(JSONCodec{}))
	if err := conn.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
