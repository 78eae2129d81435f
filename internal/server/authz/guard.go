// Package authz decides whether a Principal may act on a resource.
//
// Role and school checks are pure functions of the Principal. Ownership is
// answered by a resolver registered per resource type; a type with no
// resolver is always denied. A failed ownership check returns
// common.ErrResourceNotFoundOrDenied, the same error callers use for a
// resource that does not exist, so existence cannot be probed.
package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

// OwnershipResolver reports whether p has a legitimate relationship to the
// resource with the given id. A missing resource is (false, nil) or an error
// matching common.ErrorNotFound.
type OwnershipResolver func(ctx context.Context, p models.Principal, resourceID string) (bool, error)

// Guard evaluates authorization predicates.
type Guard struct {
	mu        sync.RWMutex
	resolvers map[string]OwnershipResolver
	log       logging.Logger
}

func NewGuard(l logging.Logger) *Guard {
	if l == nil {
		l = logging.Nop{}
	}
	return &Guard{resolvers: make(map[string]OwnershipResolver), log: l.With("module", "authz")}
}

// Register installs the ownership resolver for resourceType, replacing any
// previous one.
func (g *Guard) Register(resourceType string, r OwnershipResolver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolvers[resourceType] = r
}

// RequireRole fails with common.ErrPermissionDenied unless p has one of roles.
func (g *Guard) RequireRole(p models.Principal, roles ...models.Role) error {
	if slices.Contains(roles, p.Role) {
		return nil
	}
	return common.ErrPermissionDenied
}

// RequireSameSchool fails with common.ErrSchoolAccessDenied unless p belongs
// to schoolID.
func (g *Guard) RequireSameSchool(p models.Principal, schoolID string) error {
	if p.SchoolID != "" && p.SchoolID == schoolID {
		return nil
	}
	return common.ErrSchoolAccessDenied
}

// RequireOwnership fails with common.ErrResourceNotFoundOrDenied unless the
// resolver registered for resourceType admits p. Store failures other than
// "not found" are returned wrapped so the caller can report them as internal.
func (g *Guard) RequireOwnership(ctx context.Context, p models.Principal, resourceType, resourceID string) error {
	g.mu.RLock()
	resolve, ok := g.resolvers[resourceType]
	g.mu.RUnlock()

	if !ok {
		g.log.Warn(ctx, "no ownership resolver registered", "resource_type", resourceType)
		return common.ErrResourceNotFoundOrDenied
	}

	owns, err := resolve(ctx, p, resourceID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrResourceNotFoundOrDenied
		}
		return fmt.Errorf("ownership check %s: %w", resourceType, err)
	}
	if !owns {
		g.log.Debug(ctx, "ownership denied", "resource_type", resourceType, "resource_id", resourceID, "user_id", p.UserID)
		return common.ErrResourceNotFoundOrDenied
	}
	return nil
}
