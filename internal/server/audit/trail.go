// Package audit records and replays the immutable history of assignments.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/events"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Trail appends events and reads them back in order. It has no way to edit
// or remove an event.
type Trail struct {
	store repomanager.Store

	Now   func() time.Time
	NewID func() string
}

func NewTrail(store repomanager.Store) *Trail {
	return &Trail{
		store: store,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// Record appends e through repo, which must belong to the caller's
// transaction so the event commits together with the state change it
// describes. ID and CreatedAt are filled when empty.
func (t *Trail) Record(ctx context.Context, repo events.Repository, e *models.TransitionEvent) error {
	if e.ID == "" {
		e.ID = t.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.Now()
	}
	if err := repo.Append(ctx, e); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// History returns every event of unitID, oldest first. The result is a fresh
// slice, so calling History again restarts from the beginning.
func (t *Trail) History(ctx context.Context, unitID string) ([]models.TransitionEvent, error) {
	evs, err := t.store.Repos().Events.ListByAssignment(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if evs == nil {
		evs = []models.TransitionEvent{}
	}
	return evs, nil
}
