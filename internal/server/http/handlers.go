package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/gradekeeper/internal/api"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/principal"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	sess, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.LoginResponse{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    int64(sess.ExpiresIn.Seconds()),
		Principal:    api.FromPrincipal(sess.Principal),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	res, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.RefreshResponse{
		AccessToken: res.AccessToken,
		ExpiresIn:   int64(res.ExpiresIn.Seconds()),
		Principal:   api.FromPrincipal(res.Principal),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req api.LogoutRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	p, _ := principal.FromContext(r.Context())
	if err := s.auth.Logout(r.Context(), p, req.RefreshToken); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req api.ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	p, _ := principal.FromContext(r.Context())
	if err := s.auth.ChangePassword(r.Context(), p, req.OldPassword, req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := principal.FromContext(r.Context())
	writeJSON(w, http.StatusOK, api.FromPrincipal(p))
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req api.CreateAssignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	p, _ := principal.FromContext(r.Context())
	a, err := s.assignments.Create(r.Context(), p, req.StudentID, req.Title)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromAssignment(a))
}

func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	p, _ := principal.FromContext(r.Context())
	a, err := s.assignments.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromAssignment(a))
}

type transitionBody struct {
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	p, _ := principal.FromContext(r.Context())
	ev, err := s.assignments.Transition(r.Context(), p, chi.URLParam(r, "id"), models.Status(req.To), req.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromEvent(ev))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, _ := principal.FromContext(r.Context())
	evs, err := s.assignments.History(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.HistoryResponse{Events: api.FromEvents(evs)})
}

func (s *Server) handleExportEvidence(w http.ResponseWriter, r *http.Request) {
	p, _ := principal.FromContext(r.Context())
	link, err := s.assignments.ExportEvidence(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.EvidenceResponse{Key: link.Key, URL: link.URL, ExpiresAt: link.ExpiresAt})
}
