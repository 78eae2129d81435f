// Package credentials issues, verifies and revokes bearer credentials.
//
// Access credentials are stateless signed tokens. Refresh credentials are
// signed tokens that reference a server-side record; a refresh token is only
// accepted while its record exists and has not expired, so deleting the
// record revokes it.
//
// Every verification failure is reported as common.ErrCredentialInvalid. The
// concrete reason goes to the debug log and the rejection metric only.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gradekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/refreshtokens"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"

	tokenIDBytes = 32
)

// AccessClaims is the identity proven by a verified access credential.
type AccessClaims struct {
	UserID    string
	SchoolID  string
	Role      models.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims is the identity proven by a verified refresh credential.
type RefreshClaims struct {
	TokenID   string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Options configures a Service. Zero Logger and Metrics are replaced with no-ops.
type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Logger     logging.Logger
	Metrics    metrics.Recorder
}

// Service implements the credential lifecycle.
type Service struct {
	signer     *auth.Signer
	store      refreshtokens.Repository
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        logging.Logger
	metrics    metrics.Recorder

	// newTokenID is a seam for tests.
	newTokenID func() (string, error)
}

// NewService builds a Service signing with signer and keeping refresh
// records in store.
func NewService(signer *auth.Signer, store refreshtokens.Repository, opts Options) *Service {
	s := &Service{
		signer:     signer,
		store:      store,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		newTokenID: func() (string, error) { return common.MakeRandHexString(tokenIDBytes) },
	}
	if s.log == nil {
		s.log = logging.Nop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	s.log = s.log.With("module", "credentials")
	return s
}

// AccessTTL is the lifetime of newly issued access credentials.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// IssueAccessCredential signs an access credential for p. Role and school
// are embedded for coarse checks but are not trusted for authorization.
func (s *Service) IssueAccessCredential(p models.Principal) (string, error) {
	token, _, err := s.signer.GenerateAccessToken(p, s.accessTTL)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// IssueRefreshCredential persists a new refresh record for userID and returns
// the signed token referencing it together with the record id.
func (s *Service) IssueRefreshCredential(ctx context.Context, userID string) (token string, tokenID string, err error) {
	tokenID, err = s.newTokenID()
	if err != nil {
		return "", "", fmt.Errorf("generate token id: %w", err)
	}

	now := s.signer.Now()
	rec := &models.RefreshToken{ID: tokenID, UserID: userID, IssuedAt: now, ExpiresAt: now.Add(s.refreshTTL)}
	if err := s.store.Create(ctx, rec); err != nil {
		return "", "", fmt.Errorf("store refresh token: %w", err)
	}

	token, err = s.signer.GenerateRefreshToken(userID, tokenID, rec.IssuedAt, rec.ExpiresAt)
	if err != nil {
		// Do not leave a record nobody can present.
		_ = s.store.Delete(ctx, tokenID)
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}
	return token, tokenID, nil
}

// VerifyAccessCredential checks signature, algorithm, issuer, audience and
// expiry. It never touches storage.
func (s *Service) VerifyAccessCredential(ctx context.Context, token string) (*AccessClaims, error) {
	c, err := s.signer.ParseAccessToken(token)
	if err != nil {
		s.reject(ctx, kindAccess, auth.Reason(err))
		return nil, common.ErrCredentialInvalid
	}
	issuedAt, expiresAt := c.Times()
	return &AccessClaims{
		UserID:    c.UserID,
		SchoolID:  c.SchoolID,
		Role:      c.Role,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyRefreshCredential checks the token like an access credential and
// then requires a live record. A record past its expiry is deleted on the spot.
func (s *Service) VerifyRefreshCredential(ctx context.Context, token string) (*RefreshClaims, error) {
	c, err := s.signer.ParseRefreshToken(token)
	if err != nil {
		s.reject(ctx, kindRefresh, auth.Reason(err))
		return nil, common.ErrCredentialInvalid
	}

	rec, err := s.store.Find(ctx, c.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.reject(ctx, kindRefresh, "revoked")
			return nil, common.ErrCredentialInvalid
		}
		s.log.Error(ctx, "refresh token lookup failed", "error", err)
		s.reject(ctx, kindRefresh, "store_error")
		return nil, common.ErrCredentialInvalid
	}

	if rec.UserID != c.Subject {
		s.reject(ctx, kindRefresh, "subject_mismatch")
		return nil, common.ErrCredentialInvalid
	}

	if rec.IsExpired(s.signer.Now()) {
		if err := s.store.Delete(ctx, rec.ID); err != nil {
			s.log.Warn(ctx, "lazy purge of expired refresh token failed", "error", err)
		}
		s.reject(ctx, kindRefresh, "record_expired")
		return nil, common.ErrCredentialInvalid
	}

	return &RefreshClaims{TokenID: rec.ID, UserID: rec.UserID, IssuedAt: rec.IssuedAt, ExpiresAt: rec.ExpiresAt}, nil
}

// Revoke deletes one refresh record. Revoking an unknown id succeeds.
func (s *Service) Revoke(ctx context.Context, tokenID string) error {
	if err := s.store.Delete(ctx, tokenID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeCredential revokes the refresh credential token held by userID. The
// token must carry a valid signature and userID as its subject; a record
// that is already gone counts as revoked.
func (s *Service) RevokeCredential(ctx context.Context, token, userID string) error {
	c, err := s.signer.ParseRefreshToken(token)
	if err != nil {
		s.reject(ctx, kindRefresh, auth.Reason(err))
		return common.ErrCredentialInvalid
	}
	if c.Subject != userID {
		s.reject(ctx, kindRefresh, "subject_mismatch")
		return common.ErrCredentialInvalid
	}
	return s.Revoke(ctx, c.ID)
}

// RevokeAll deletes every refresh record of userID.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	s.log.Info(ctx, "all refresh tokens revoked", "user_id", userID)
	return nil
}

// PurgeExpired deletes every record whose expiry has passed and returns the count.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.signer.Now())
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	s.metrics.RefreshPurged(n)
	return n, nil
}

func (s *Service) reject(ctx context.Context, kind, reason string) {
	s.log.Debug(ctx, "credential rejected", "kind", kind, "reason", reason)
	s.metrics.CredentialRejected(kind, reason)
}
