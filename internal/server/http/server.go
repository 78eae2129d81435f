// Package http serves the gradekeeper API over HTTP/JSON under /api/v1.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/api"
	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/principal"
	"github.com/dmitrijs2005/gradekeeper/internal/server/services"
	"github.com/dmitrijs2005/gradekeeper/internal/server/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthService is what the API needs from services.AuthService.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*services.Refreshed, error)
	Authenticate(ctx context.Context, accessToken string) (models.Principal, error)
	Logout(ctx context.Context, caller models.Principal, refreshToken string) error
	ChangePassword(ctx context.Context, caller models.Principal, oldPassword, newPassword string) error
}

// AssignmentService is what the API needs from services.AssignmentService.
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
	metrics     http.Handler
	logger      logging.Logger
}

// NewServer builds the API server. A nil metrics handler serves the default
// Prometheus registry.
func NewServer(address string, l logging.Logger, auth AuthService, assignments AssignmentService, metrics http.Handler) *Server {
	if l == nil {
		l = logging.Nop{}
	}
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	return &Server{
		address:     address,
		auth:        auth,
		assignments: assignments,
		metrics:     metrics,
		logger:      l.With("module", "http_server"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/password", s.handleChangePassword)
			r.Get("/me", s.handleMe)

			r.Post("/assignments", s.handleCreateAssignment)
			r.Get("/assignments/{id}", s.handleGetAssignment)
			r.Post("/assignments/{id}/transitions", s.handleTransition)
			r.Get("/assignments/{id}/history", s.handleHistory)
			r.Post("/assignments/{id}/evidence", s.handleExportEvidence)
		})
	})

	return r
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := common.BearerToken(r.Header.Get("Authorization"))
		p, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		ctx := logging.ContextWith(r.Context(), "user_id", p.UserID, "school_id", p.SchoolID)
		next.ServeHTTP(w, r.WithContext(principal.WithPrincipal(ctx, p)))
	})
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.Error{Code: code, Message: message})
}

// writeServiceError maps a service error onto a status code and error body.
// Unknown errors are logged and never echoed.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ite *workflow.InvalidTransitionError

	switch {
	case errors.Is(err, common.ErrCredentialMissing):
		writeError(w, http.StatusUnauthorized, "missing_credential", "missing credential")
	case errors.Is(err, common.ErrCredentialInvalid), errors.Is(err, common.ErrPrincipalNotFound):
		writeError(w, http.StatusUnauthorized, "invalid_credential", "invalid or expired credential")
	case errors.Is(err, common.ErrorUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid_login", "invalid email or password")
	case errors.Is(err, common.ErrPermissionDenied), errors.Is(err, common.ErrSchoolAccessDenied):
		writeError(w, http.StatusForbidden, "permission_denied", "permission denied")
	case errors.Is(err, common.ErrResourceNotFoundOrDenied):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.As(err, &ite):
		writeJSON(w, http.StatusConflict, api.Error{
			Code:      "invalid_transition",
			Message:   ite.Error(),
			From:      string(ite.From),
			Attempted: string(ite.To),
			Valid:     api.StatusNames(ite.Valid),
		})
	case errors.Is(err, common.ErrConcurrencyConflict):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "concurrency_conflict", "concurrency conflict, retry")
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", "already exists")
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
