// Package assignments stores gradable assignments.
package assignments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/dbx"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Assignment) error {
	query :=
		`INSERT INTO assignments (id, school_id, owner_teacher_id, student_id, title, status, reopen_count, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 `

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.SchoolID, a.OwnerTeacherID, a.StudentID, a.Title, string(a.Status),
		a.ReopenCount, a.Version, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectAssignment = `SELECT id, school_id, owner_teacher_id, student_id, title, status, reopen_count, version, created_at, updated_at
		 FROM assignments
		 WHERE id = $1`

func (r *PostgresRepository) get(ctx context.Context, query string, id string) (*models.Assignment, error) {
	a := &models.Assignment{}
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.SchoolID, &a.OwnerTeacherID, &a.StudentID, &a.Title, &status,
		&a.ReopenCount, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if dbx.IsConcurrencyFailure(err) {
			return nil, common.ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.Status = models.Status(status)
	return a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Assignment, error) {
	return r.get(ctx, selectAssignment, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Assignment, error) {
	return r.get(ctx, selectAssignment+` FOR UPDATE`, id)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, a *models.Assignment, expectedVersion int64) error {
	query :=
		`UPDATE assignments
		 SET status = $2, reopen_count = $3, updated_at = $4, version = version + 1
		 WHERE id = $1 AND version = $5
		 RETURNING version
		 `

	var version int64
	err := r.db.QueryRowContext(ctx, query, a.ID, string(a.Status), a.ReopenCount, a.UpdatedAt, expectedVersion).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsConcurrencyFailure(err) {
			return common.ErrConcurrencyConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	a.Version = version
	return nil
}
