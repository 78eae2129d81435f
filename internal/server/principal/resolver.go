// Package principal turns verified credential claims into the Principal of
// the current request. The profile is re-read on every call: a token proves
// who the caller is, while role and school always come from the store.
package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/credentials"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

// UserLookup is the read-only profile lookup the resolver needs.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type Resolver struct {
	users UserLookup
	log   logging.Logger
}

func NewResolver(users UserLookup, l logging.Logger) *Resolver {
	if l == nil {
		l = logging.Nop{}
	}
	return &Resolver{users: users, log: l.With("module", "principal")}
}

// Resolve returns the live Principal for verified access claims.
func (r *Resolver) Resolve(ctx context.Context, claims *credentials.AccessClaims) (models.Principal, error) {
	return r.ResolveUser(ctx, claims.UserID)
}

// ResolveUser returns the live Principal for userID. A missing profile or
// one with an unknown role yields common.ErrPrincipalNotFound.
func (r *Resolver) ResolveUser(ctx context.Context, userID string) (models.Principal, error) {
	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return models.Principal{}, common.ErrPrincipalNotFound
		}
		return models.Principal{}, fmt.Errorf("resolve principal: %w", err)
	}
	if !u.Role.Valid() {
		r.log.Warn(ctx, "profile has unknown role", "user_id", u.ID, "role", string(u.Role))
		return models.Principal{}, common.ErrPrincipalNotFound
	}
	return u.Principal(), nil
}

type ctxKey struct{}

// WithPrincipal stores p in ctx for the rest of the request.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the Principal stored by WithPrincipal.
func FromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(models.Principal)
	return p, ok
}
