package grpc

import (
	"context"

	"github.com/dmitrijs2005/gradekeeper/internal/api"
	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/principal"
)

func (s *Server) caller(ctx context.Context) (models.Principal, error) {
	p, ok := principal.FromContext(ctx)
	if !ok {
		return models.Principal{}, toStatus(ctx, s.logger, common.ErrCredentialMissing)
	}
	return p, nil
}

func (s *Server) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	sess, err := s.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &api.LoginResponse{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    int64(sess.ExpiresIn.Seconds()),
		Principal:    api.FromPrincipal(sess.Principal),
	}, nil
}

func (s *Server) RefreshToken(ctx context.Context, req *api.RefreshRequest) (*api.RefreshResponse, error) {
	r, err := s.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &api.RefreshResponse{
		AccessToken: r.AccessToken,
		ExpiresIn:   int64(r.ExpiresIn.Seconds()),
		Principal:   api.FromPrincipal(r.Principal),
	}, nil
}

func (s *Server) Logout(ctx context.Context, req *api.LogoutRequest) (*api.Empty, error) {
	p, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.Logout(ctx, p, req.RefreshToken); err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &api.Empty{}, nil
}

func (s *Server) ChangePassword(ctx context.Context, req *api.ChangePasswordRequest) (*api.Empty, error) {
	p, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.ChangePassword(ctx, p, req.OldPassword, req.NewPassword); err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &api.Empty{}, nil
}

func (s *Server) Me(ctx context.Context, _ *api.Empty) (*api.Principal, error) {
	p, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	out := api.FromPrincipal(p)
	return &out, nil
}

func (s *Server) CreateAssignment(ctx context.Context, req *api.CreateAssignmentRequest) (*api.Assignment, error) {
	p, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.assignments.Create(ctx, p, req.StudentID, req.Title)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return api.FromAssignment(a), nil
}

func (s *Server) GetAssignment(ctx context.Context, req *api.AssignmentRef) (*api.Assignment, error) {
	p, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.assignments.Get(ctx, p, req.ID)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return api.FromAssignment(a), nil
}

func (s *Server) TransitionAssignment(ctx context.Context, req *api.TransitionRequest) (*api.Event, error) {
	p, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ev, err := s.assignments.Transition(ctx, p, req.ID, models.Status(req.To), req.Reason)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return api.FromEvent(ev), nil
}

func (s *Server) AssignmentHistory(ctx context.Context, req *api.AssignmentRef) (*api.HistoryResponse, error) {
	p, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := s.assignments.History(ctx, p, req.ID)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &api.HistoryResponse{Events: api.FromEvents(evs)}, nil
}

func (s *Server) ExportEvidence(ctx context.Context, req *api.AssignmentRef) (*api.EvidenceResponse, error) {
	p, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	link, err := s.assignments.ExportEvidence(ctx, p, req.ID)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &api.EvidenceResponse{Key: link.Key, URL: link.URL, ExpiresAt: link.ExpiresAt}, nil
}
