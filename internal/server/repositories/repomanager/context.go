package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

type reposKey struct{}

// WithRepos marks ctx as running inside a transaction bound to r. Store
// implementations call it from InTx.
func WithRepos(ctx context.Context, r Repos) context.Context {
	return context.WithValue(ctx, reposKey{}, r)
}

// ReposFrom returns the transaction's Repos when ctx carries one, else s.Repos().
func ReposFrom(ctx context.Context, s Store) Repos {
	if r, ok := ctx.Value(reposKey{}).(Repos); ok {
		return r
	}
	return s.Repos()
}

// ScopedAssignments reads assignments through whatever transaction ctx is in.
type ScopedAssignments struct {
	Store Store
}

func (a ScopedAssignments) Get(ctx context.Context, id string) (*models.Assignment, error) {
	return ReposFrom(ctx, a.Store).Assignments.Get(ctx, id)
}

// ScopedUsers reads profiles and guardian links through whatever transaction
// ctx is in.
type ScopedUsers struct {
	Store Store
}

func (u ScopedUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	return ReposFrom(ctx, u.Store).Users.GetByID(ctx, id)
}

func (u ScopedUsers) IsGuardianOf(ctx context.Context, parentID, studentID string) (bool, error) {
	return ReposFrom(ctx, u.Store).Users.IsGuardianOf(ctx, parentID, studentID)
}
