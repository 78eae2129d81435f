// Package session keeps the CLI client's signed-in session in a local SQLite
// database so that a refresh credential survives between runs.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/gradekeeper/internal/client/migrations"
	"github.com/dmitrijs2005/gradekeeper/internal/dbx"
	"github.com/dmitrijs2005/gradekeeper/internal/filex"

	_ "modernc.org/sqlite"
)

const (
	keyEmail        = "email"
	keyUserID       = "user_id"
	keyRefreshToken = "refresh_token"
)

// Session is what the client remembers after a successful login.
type Session struct {
	Email        string
	UserID       string
	RefreshToken string
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite file at dsn and applies the
// embedded migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if _, err := filex.EnsureParentDir(dsn); err != nil {
			return nil, fmt.Errorf("session db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("session db migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("session db migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored session, or nil when nobody is signed in.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	repo := NewSQLiteRepository(s.db)

	token, err := repo.Get(ctx, keyRefreshToken)
	if err != nil {
		return nil, err
	}
	if len(token) == 0 {
		return nil, nil
	}
	email, err := repo.Get(ctx, keyEmail)
	if err != nil {
		return nil, err
	}
	userID, err := repo.Get(ctx, keyUserID)
	if err != nil {
		return nil, err
	}
	return &Session{Email: string(email), UserID: string(userID), RefreshToken: string(token)}, nil
}

// Save replaces the stored session atomically.
func (s *Store) Save(ctx context.Context, sess Session) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewSQLiteRepository(tx)
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		if err := repo.Set(ctx, keyEmail, []byte(sess.Email)); err != nil {
			return err
		}
		if err := repo.Set(ctx, keyUserID, []byte(sess.UserID)); err != nil {
			return err
		}
		return repo.Set(ctx, keyRefreshToken, []byte(sess.RefreshToken))
	})
}

// Clear forgets the stored session.
func (s *Store) Clear(ctx context.Context) error {
	return NewSQLiteRepository(s.db).Clear(ctx)
}
