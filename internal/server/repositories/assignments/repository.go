package assignments

import (
	"context"

	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

// Repository persists assignments. Status changes go through UpdateStatus
// only, which refuses to write over a newer version.
type Repository interface {
	Create(ctx context.Context, a *models.Assignment) error
	Get(ctx context.Context, id string) (*models.Assignment, error)
	// GetForUpdate reads the row and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Assignment, error)
	// UpdateStatus writes Status, ReopenCount and UpdatedAt if the stored
	// version still equals expectedVersion, and bumps a.Version. Otherwise
	// it returns common.ErrConcurrencyConflict.
	UpdateStatus(ctx context.Context, a *models.Assignment, expectedVersion int64) error
}
