package workflow

import (
	"fmt"
	"slices"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

// transitions is the complete table of allowed moves. Nothing is terminal:
// completed work can be reopened.
var transitions = map[models.Status][]models.Status{
	models.StatusAssigned:  {models.StatusViewed},
	models.StatusViewed:    {models.StatusSubmitted},
	models.StatusSubmitted: {models.StatusReviewed},
	models.StatusReviewed:  {models.StatusCompleted},
	models.StatusCompleted: {models.StatusReopened},
	models.StatusReopened:  {models.StatusSubmitted},
}

// AllowedTargets returns the statuses reachable from from in one step.
func AllowedTargets(from models.Status) []models.Status {
	return slices.Clone(transitions[from])
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to models.Status) bool {
	return slices.Contains(transitions[from], to)
}

// InvalidTransitionError names the attempted move and what would have been
// allowed. It matches common.ErrInvalidTransition.
type InvalidTransitionError struct {
	From  models.Status
	To    models.Status
	Valid []models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s (allowed: %v)", e.From, e.To, e.Valid)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == common.ErrInvalidTransition
}
