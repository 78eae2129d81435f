// Package auth encodes and decodes the signed bearer tokens behind access and
// refresh credentials. It knows nothing about storage: whether a refresh
// token is still backed by a record is decided by the credentials package.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the typ claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Parse failures. They describe why a token was rejected and are meant for
// logs and metrics only.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenClaims    = errors.New("token claims invalid")
	ErrTokenType      = errors.New("token type mismatch")
)

// AccessClaims are the claims of an access token. Role and SchoolID are
// informational; authorization always uses the live profile.
type AccessClaims struct {
	jwt.RegisteredClaims
	Type     string      `json:"typ"`
	UserID   string      `json:"user_id"`
	SchoolID string      `json:"school_id"`
	Role     models.Role `json:"role"`
}

// Times returns the iat and exp claims, zero when absent.
func (c *AccessClaims) Times() (issuedAt, expiresAt time.Time) {
	return dateOf(c.IssuedAt), dateOf(c.ExpiresAt)
}

func dateOf(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

// RefreshClaims are the claims of a refresh token: ID holds the record id
// (jti) and Subject the user id.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// Signer issues and verifies HS256 tokens for one issuer/audience pair.
type Signer struct {
	secret   []byte
	issuer   string
	audience string

	// Now is the clock used for iat/exp and for validation.
	Now func() time.Time
}

// NewSigner returns a Signer using the wall clock.
func NewSigner(secret []byte, issuer, audience string) *Signer {
	return &Signer{secret: secret, issuer: issuer, audience: audience, Now: time.Now}
}

// GenerateAccessToken signs an access token for p valid for ttl. It returns
// the token and its expiry.
func (s *Signer) GenerateAccessToken(p models.Principal, ttl time.Duration) (string, time.Time, error) {
	now := s.Now()
	exp := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Type:     TypeAccess,
		UserID:   p.UserID,
		SchoolID: p.SchoolID,
		Role:     p.Role,
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, exp, nil
}

// GenerateRefreshToken signs a refresh token referencing the record tokenID.
func (s *Signer) GenerateRefreshToken(userID, tokenID string, issuedAt, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type: TypeRefresh,
	})
	return token.SignedString(s.secret)
}

// ParseAccessToken validates signature, algorithm, issuer, audience and
// expiry and returns the claims.
func (s *Signer) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, ErrTokenType
	}
	if claims.UserID == "" {
		return nil, ErrTokenClaims
	}
	return claims, nil
}

// ParseRefreshToken validates a refresh token the same way as
// ParseAccessToken. It does not consult storage.
func (s *Signer) ParseRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, ErrTokenType
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrTokenClaims
	}
	return claims, nil
}

func (s *Signer) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.Now),
	)
	if err != nil {
		return classify(err)
	}
	if !token.Valid {
		return ErrTokenClaims
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignature
	default:
		return ErrTokenClaims
	}
}

// Reason returns a short label for a parse failure, suitable for a metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenSignature):
		return "bad_signature"
	case errors.Is(err, ErrTokenType):
		return "wrong_type"
	default:
		return "bad_claims"
	}
}
