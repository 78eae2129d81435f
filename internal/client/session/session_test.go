package session

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_EmptyLoad(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "s.db"))

	sess, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "s.db"))

	require.NoError(t, s.Save(ctx, Session{Email: "a@example.com", UserID: "u1", RefreshToken: "r1"}))
	require.NoError(t, s.Save(ctx, Session{Email: "b@example.com", UserID: "u2", RefreshToken: "r2"}))

	sess, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Session{Email: "b@example.com", UserID: "u2", RefreshToken: "r2"}, sess)

	require.NoError(t, s.Clear(ctx))
	sess, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "s.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, Session{Email: "a@example.com", UserID: "u1", RefreshToken: "r1"}))
	require.NoError(t, s.Close())

	s2 := openStore(t, path)
	sess, err := s2.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "r1", sess.RefreshToken)
}

func TestStore_ClosedDB(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Load(ctx)
	require.Error(t, err)
	require.Error(t, s.Save(ctx, Session{RefreshToken: "x"}))
	require.Error(t, s.Clear(ctx))
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestRepository_SetGetDelete(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "k", []byte("new")))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)

	require.NoError(t, r.Delete(ctx, "k"))
	v, err = r.Get(ctx, "k")
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, r.Delete(ctx, "k"))
}

func TestRepository_ErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, "failed to get metadata[k]")
	require.ErrorContains(t, r.Set(ctx, "k", []byte("v")), "failed to set metadata[k]")
	require.ErrorContains(t, r.Delete(ctx, "k"), "failed to delete metadata[k]")
	require.ErrorContains(t, r.Clear(ctx), "failed to clear metadata")
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "s.db")
	s := openStore(t, path)

	require.NoError(t, s.Save(context.Background(), Session{Email: "a@b.c", UserID: "u", RefreshToken: "r"}))
	assert.FileExists(t, path)
}
