// Package repomanager wires repository constructors, transactions and
// database migrations (via goose) together.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/dbx"
	"github.com/dmitrijs2005/gradekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/assignments"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/events"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// RefreshTokens returns a refreshtokens.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

// Assignments returns an assignments.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Assignments(db dbx.DBTX) assignments.Repository {
	return assignments.NewPostgresRepository(db)
}

// Events returns an events.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Events(db dbx.DBTX) events.Repository {
	return events.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

// SQLStore is a Store over a *sql.DB. Transactions run at READ COMMITTED;
// callers lock the rows they mutate (SELECT ... FOR UPDATE).
type SQLStore struct {
	db *sql.DB
	m  RepositoryManager
}

// NewSQLStore binds m's repositories to db.
func NewSQLStore(db *sql.DB, m RepositoryManager) *SQLStore {
	return &SQLStore{db: db, m: m}
}

func (s *SQLStore) bind(db dbx.DBTX) Repos {
	return Repos{
		Users:       s.m.Users(db),
		Assignments: s.m.Assignments(db),
		Events:      s.m.Events(db),
	}
}

// Repos returns repositories running each statement in its own implicit transaction.
func (s *SQLStore) Repos() Repos {
	return s.bind(s.db)
}

// InTx runs fn in a transaction. Serialization failures and deadlocks,
// including those reported at commit, become common.ErrConcurrencyConflict.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := s.bind(tx)
		return fn(WithRepos(ctx, r), r)
	})
	if dbx.IsConcurrencyFailure(err) {
		return common.ErrConcurrencyConflict
	}
	return err
}
