package users

import (
	"context"

	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

// Repository is the persisted profile store principals are resolved from.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id string, hash []byte) error
	// AddGuardian links a parent to a student. Linking twice is a no-op.
	AddGuardian(ctx context.Context, parentID, studentID string) error
	IsGuardianOf(ctx context.Context, parentID, studentID string) (bool, error)
}
