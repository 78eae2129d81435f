package events

import (
	"context"

	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

// Repository is the append-only assignment event log. There is deliberately
// no update or delete.
type Repository interface {
	// Append stores e and fills e.Seq.
	Append(ctx context.Context, e *models.TransitionEvent) error
	// ListByAssignment returns the events of one assignment in Seq order.
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.TransitionEvent, error)
}
