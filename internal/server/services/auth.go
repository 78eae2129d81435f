// Package services contains the server-side use cases the transports call.
// AuthService covers sign-in, credential refresh, logout and password
// changes; AssignmentService wraps the workflow engine.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/credentials"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/principal"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced when a password is set.
const MinPasswordLength = 8

// Session is what a successful login hands back.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Principal    models.Principal
}

// Refreshed is the result of exchanging a refresh credential.
type Refreshed struct {
	AccessToken string
	ExpiresIn   time.Duration
	Principal   models.Principal
}

// NewUser describes an account created by an administrator.
type NewUser struct {
	SchoolID    string
	Role        models.Role
	DisplayName string
	Email       string
	Password    string
}

type AuthService struct {
	store    repomanager.Store
	creds    *credentials.Service
	resolver *principal.Resolver
	log      logging.Logger

	// BcryptCost is used for new password hashes.
	BcryptCost int
}

func NewAuthService(store repomanager.Store, creds *credentials.Service, resolver *principal.Resolver, l logging.Logger) *AuthService {
	if l == nil {
		l = logging.Nop{}
	}
	return &AuthService{
		store:      store,
		creds:      creds,
		resolver:   resolver,
		log:        l.With("module", "auth"),
		BcryptCost: bcrypt.DefaultCost,
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// burnCompare spends about as long as a real password check so that unknown
// emails cannot be told apart by timing.
func burnCompare(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("gradekeeper-dummy"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Login checks email and password and issues a fresh credential pair.
// Any mismatch yields common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.Repos().Users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			burnCompare(password)
			return nil, common.ErrorUnauthorized
		}
		s.log.Error(ctx, "login lookup failed", "error", err)
		return nil, common.ErrorInternal
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, common.ErrorUnauthorized
	}
	if !u.Role.Valid() {
		s.log.Warn(ctx, "login refused for unknown role", "user_id", u.ID, "role", string(u.Role))
		return nil, common.ErrorUnauthorized
	}

	p := u.Principal()
	access, err := s.creds.IssueAccessCredential(p)
	if err != nil {
		s.log.Error(ctx, "issue access credential failed", "error", err)
		return nil, common.ErrorInternal
	}
	refresh, _, err := s.creds.IssueRefreshCredential(ctx, p.UserID)
	if err != nil {
		s.log.Error(ctx, "issue refresh credential failed", "error", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "user logged in", "user_id", p.UserID)
	return &Session{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.creds.AccessTTL(), Principal: p}, nil
}

// Refresh exchanges a refresh credential for a new access credential. The
// refresh credential stays valid until it expires or is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Refreshed, error) {
	if refreshToken == "" {
		return nil, common.ErrCredentialMissing
	}
	claims, err := s.creds.VerifyRefreshCredential(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	p, err := s.resolver.ResolveUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrPrincipalNotFound) {
			return nil, common.ErrCredentialInvalid
		}
		s.log.Error(ctx, "resolve principal on refresh failed", "error", err)
		return nil, common.ErrorInternal
	}

	access, err := s.creds.IssueAccessCredential(p)
	if err != nil {
		s.log.Error(ctx, "issue access credential failed", "error", err)
		return nil, common.ErrorInternal
	}
	return &Refreshed{AccessToken: access, ExpiresIn: s.creds.AccessTTL(), Principal: p}, nil
}

// Authenticate turns a bearer access credential into the caller's live
// Principal.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (models.Principal, error) {
	if accessToken == "" {
		return models.Principal{}, common.ErrCredentialMissing
	}
	claims, err := s.creds.VerifyAccessCredential(ctx, accessToken)
	if err != nil {
		return models.Principal{}, err
	}
	p, err := s.resolver.Resolve(ctx, claims)
	if err != nil {
		if errors.Is(err, common.ErrPrincipalNotFound) {
			return models.Principal{}, err
		}
		s.log.Error(ctx, "resolve principal failed", "error", err)
		return models.Principal{}, common.ErrorInternal
	}
	return p, nil
}

// Logout revokes refreshToken, which must belong to caller. With no token
// every refresh credential of caller is revoked.
func (s *AuthService) Logout(ctx context.Context, caller models.Principal, refreshToken string) error {
	if refreshToken == "" {
		if err := s.creds.RevokeAll(ctx, caller.UserID); err != nil {
			s.log.Error(ctx, "logout revoke all failed", "error", err)
			return common.ErrorInternal
		}
		return nil
	}

	err := s.creds.RevokeCredential(ctx, refreshToken, caller.UserID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrCredentialInvalid):
		return err
	default:
		s.log.Error(ctx, "logout revoke failed", "error", err)
		return common.ErrorInternal
	}
}

// ChangePassword replaces caller's password and signs out every device.
func (s *AuthService) ChangePassword(ctx context.Context, caller models.Principal, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, MinPasswordLength)
	}

	users := s.store.Repos().Users
	u, err := users.GetByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrPrincipalNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(oldPassword)); err != nil {
		return common.ErrorUnauthorized
	}

	return s.setPassword(ctx, u.ID, newPassword)
}

// Me returns caller as resolved for this request.
func (s *AuthService) Me(_ context.Context, caller models.Principal) models.Principal {
	return caller
}

// AddUser creates an account. Used by the admin tool.
func (s *AuthService) AddUser(ctx context.Context, nu NewUser) (*models.User, error) {
	email := strings.TrimSpace(nu.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", common.ErrorValidation, email)
	}
	if !nu.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrorValidation, nu.Role)
	}
	if strings.TrimSpace(nu.SchoolID) == "" {
		return nil, fmt.Errorf("%w: school is required", common.ErrorValidation)
	}
	if len(nu.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), s.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.Repos().Users.Create(ctx, &models.User{
		ID:           uuid.NewString(),
		SchoolID:     strings.TrimSpace(nu.SchoolID),
		Role:         nu.Role,
		DisplayName:  strings.TrimSpace(nu.DisplayName),
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user created", "user_id", u.ID, "role", string(u.Role), "school_id", u.SchoolID)
	return u, nil
}

// LinkGuardian records parentEmail as a guardian of studentEmail.
func (s *AuthService) LinkGuardian(ctx context.Context, parentEmail, studentEmail string) error {
	users := s.store.Repos().Users
	parent, err := users.GetByEmail(ctx, parentEmail)
	if err != nil {
		return fmt.Errorf("parent %s: %w", parentEmail, err)
	}
	student, err := users.GetByEmail(ctx, studentEmail)
	if err != nil {
		return fmt.Errorf("student %s: %w", studentEmail, err)
	}
	if parent.Role != models.RoleParent || student.Role != models.RoleStudent {
		return fmt.Errorf("%w: need a parent and a student", common.ErrorValidation)
	}
	if parent.SchoolID != student.SchoolID {
		return fmt.Errorf("%w: parent and student belong to different schools", common.ErrorValidation)
	}
	return users.AddGuardian(ctx, parent.ID, student.ID)
}

// SetPassword overwrites the password of the account with email and revokes
// its refresh credentials. Used by the admin tool.
func (s *AuthService) SetPassword(ctx context.Context, email, password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, MinPasswordLength)
	}
	u, err := s.store.Repos().Users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.setPassword(ctx, u.ID, password)
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.Repos().Users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.creds.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.log.Info(ctx, "password changed", "user_id", userID)
	return nil
}
