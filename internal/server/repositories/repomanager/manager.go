package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gradekeeper/internal/dbx"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/assignments"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/events"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same
// constructors serve plain connections and transactions.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Assignments(db dbx.DBTX) assignments.Repository
	Events(db dbx.DBTX) events.Repository
}

// Repos is the set of repositories the workflow reads and writes together.
type Repos struct {
	Users       users.Repository
	Assignments assignments.Repository
	Events      events.Repository
}

// Store hands out Repos either directly or scoped to a transaction.
// Everything fn does through the Repos it receives commits or rolls back
// as a unit.
type Store interface {
	Repos() Repos
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}
