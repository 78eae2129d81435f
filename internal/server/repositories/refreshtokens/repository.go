package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

// Repository stores refresh credential records. Implementations must be safe
// for concurrent use; the Postgres and Redis ones may be shared between
// server instances.
type Repository interface {
	// Create persists a new record.
	Create(ctx context.Context, token *models.RefreshToken) error
	// Find returns the record with the given id or common.ErrorNotFound.
	Find(ctx context.Context, id string) (*models.RefreshToken, error)
	// Delete removes the record with the given id. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteByUser removes every record of the user.
	DeleteByUser(ctx context.Context, userID string) error
	// DeleteExpired removes every record whose expiry is at or before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
