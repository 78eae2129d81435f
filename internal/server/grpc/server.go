// Package grpc exposes the gradekeeper service over gRPC with a JSON codec.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/services"
	"google.golang.org/grpc"
)

// AuthService is what the transport needs from services.AuthService.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*services.Refreshed, error)
	Authenticate(ctx context.Context, accessToken string) (models.Principal, error)
	Logout(ctx context.Context, caller models.Principal, refreshToken string) error
	ChangePassword(ctx context.Context, caller models.Principal, oldPassword, newPassword string) error
}

// AssignmentService is what the transport needs from services.AssignmentService.
type AssignmentService interface {
	Create(ctx context.Context, actor models.Principal, studentID, title string) (*models.Assignment, error)
	Get(ctx context.Context, actor models.Principal, unitID string) (*models.Assignment, error)
	Transition(ctx context.Context, actor models.Principal, unitID string, to models.Status, reason string) (*models.TransitionEvent, error)
	History(ctx context.Context, actor models.Principal, unitID string) ([]models.TransitionEvent, error)
	ExportEvidence(ctx context.Context, actor models.Principal, unitID string) (*services.EvidenceLink, error)
}

type Server struct {
	address     string
	auth        AuthService
	assignments AssignmentService
	logger      logging.Logger
}

var _ GradeKeeperServer = (*Server)(nil)

func NewServer(a string, l logging.Logger, auth AuthService, assignments AssignmentService) *Server {
	if l == nil {
		l = logging.Nop{}
	}
	return &Server{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		auth:        auth,
		assignments: assignments,
	}
}

// NewGRPCServer builds the grpc.Server with the codec, interceptor and
// service registered.
func (s *Server) NewGRPCServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(JSONCodec{}),
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
	)
	srv.RegisterService(&ServiceDesc, s)
	return srv
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.NewGRPCServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	return srv.Serve(lis)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}
