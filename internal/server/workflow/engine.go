// Package workflow drives assignments through their lifecycle:
//
//	assigned -> viewed -> submitted -> reviewed -> completed -> reopened -> submitted
//
// Each change locks the assignment row, checks the transition table and the
// actor's role, writes the new status under a version check and appends one
// audit event, all in a single transaction.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/audit"
	"github.com/dmitrijs2005/gradekeeper/internal/server/authz"
	"github.com/dmitrijs2005/gradekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Metadata keys stored on events.
const (
	MetaReason  = "reason"
	MetaTrigger = "trigger"
	MetaTitle   = "title"

	TriggerRead = "read"
)

// Engine applies workflow transitions.
type Engine struct {
	store   repomanager.Store
	trail   *audit.Trail
	guard   *authz.Guard
	log     logging.Logger
	metrics metrics.Recorder

	Now   func() time.Time
	NewID func() string
}

// NewEngine builds an engine over store. Ownership of assignments and
// students is decided by guard; a nil guard gets the built-in resolvers
// reading from store.
func NewEngine(store repomanager.Store, trail *audit.Trail, guard *authz.Guard, l logging.Logger, m metrics.Recorder) *Engine {
	if l == nil {
		l = logging.Nop{}
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if guard == nil {
		guard = NewGuard(store, l)
	}
	return &Engine{
		store:   store,
		trail:   trail,
		guard:   guard,
		log:     l.With("module", "workflow"),
		metrics: m,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   uuid.NewString,
	}
}

// NewGuard returns a guard with the built-in resolvers. They read through
// the transaction in the request context, if any, so checks made inside
// InTx see the same rows the engine is about to change.
func NewGuard(store repomanager.Store, l logging.Logger) *authz.Guard {
	g := authz.NewGuard(l)
	authz.RegisterDefaults(g, repomanager.ScopedAssignments{Store: store}, repomanager.ScopedUsers{Store: store})
	return g
}

// Guard is the authorization guard the engine consults.
func (e *Engine) Guard() *authz.Guard { return e.guard }

// Create makes a new assignment in status assigned for studentID, owned by
// the calling teacher, and records its creation event.
func (e *Engine) Create(ctx context.Context, actor models.Principal, studentID, title string) (*models.Assignment, *models.TransitionEvent, error) {
	if err := e.guard.RequireRole(actor, models.RoleTeacher); err != nil {
		return nil, nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil, fmt.Errorf("%w: title is required", common.ErrorValidation)
	}

	var (
		a  *models.Assignment
		ev *models.TransitionEvent
	)
	err := e.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		if err := e.guard.RequireOwnership(ctx, actor, authz.ResourceStudent, studentID); err != nil {
			return err
		}

		now := e.Now()
		a = &models.Assignment{
			ID:             e.NewID(),
			SchoolID:       actor.SchoolID,
			OwnerTeacherID: actor.UserID,
			StudentID:      studentID,
			Title:          title,
			Status:         models.StatusAssigned,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := r.Assignments.Create(ctx, a); err != nil {
			return err
		}

		ev = &models.TransitionEvent{
			UnitID:      a.ID,
			EventType:   models.EventCreated,
			ActorUserID: actor.UserID,
			ToStatus:    models.StatusAssigned,
			Metadata:    map[string]string{MetaTitle: title},
			CreatedAt:   now,
		}
		return e.trail.Record(ctx, r.Events, ev)
	})
	if err != nil {
		return nil, nil, e.finish(ctx, err)
	}

	e.log.Info(ctx, "assignment created", "unit_id", a.ID, "actor", actor.UserID)
	return a, ev, nil
}

// Open is the read path. It returns the assignment if actor may see it and,
// when the assigned student reads an assignment still in status assigned,
// moves it to viewed and returns the event of that implicit transition.
func (e *Engine) Open(ctx context.Context, unitID string, actor models.Principal) (*models.Assignment, *models.TransitionEvent, error) {
	var (
		a  *models.Assignment
		ev *models.TransitionEvent
	)
	err := e.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		a, err = e.loadOwned(ctx, r, unitID, actor)
		if err != nil {
			return err
		}
		if a.Status != models.StatusAssigned || actor.Role != models.RoleStudent || a.StudentID != actor.UserID {
			return nil
		}
		ev, err = e.apply(ctx, r, a, actor, models.StatusViewed, map[string]string{MetaTrigger: TriggerRead})
		return err
	})
	if err != nil {
		return nil, nil, e.finish(ctx, err)
	}

	if ev != nil {
		e.applied(ctx, ev)
	}
	return a, ev, nil
}

// Transition moves unitID to status to on behalf of actor. An empty reason
// is not recorded. Failures:
//   - common.ErrResourceNotFoundOrDenied: no such assignment or actor has no relation to it
//   - *InvalidTransitionError: to is not reachable from the current status
//   - common.ErrPermissionDenied: actor's role may not perform this move
//   - common.ErrConcurrencyConflict: the row changed underneath; safe to retry
func (e *Engine) Transition(ctx context.Context, unitID string, actor models.Principal, to models.Status, reason string) (*models.TransitionEvent, error) {
	_, ev, err := e.TransitionAssignment(ctx, unitID, actor, to, reason)
	return ev, err
}

// TransitionAssignment is Transition that also returns the assignment as it
// was written by the same transaction.
func (e *Engine) TransitionAssignment(ctx context.Context, unitID string, actor models.Principal, to models.Status, reason string) (*models.Assignment, *models.TransitionEvent, error) {
	var (
		a  *models.Assignment
		ev *models.TransitionEvent
	)
	err := e.store.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		var err error
		a, err = e.loadOwned(ctx, r, unitID, actor)
		if err != nil {
			return err
		}

		if !CanTransition(a.Status, to) {
			return &InvalidTransitionError{From: a.Status, To: to, Valid: AllowedTargets(a.Status)}
		}
		if err := authorizeTransition(a, actor, to); err != nil {
			return err
		}

		var meta map[string]string
		if reason = strings.TrimSpace(reason); reason != "" {
			meta = map[string]string{MetaReason: reason}
		}
		ev, err = e.apply(ctx, r, a, actor, to, meta)
		return err
	})
	if err != nil {
		return nil, nil, e.finish(ctx, err)
	}

	e.applied(ctx, ev)
	return a, ev, nil
}

// Get returns the assignment without any side effect.
func (e *Engine) Get(ctx context.Context, unitID string, actor models.Principal) (*models.Assignment, error) {
	r := e.store.Repos()
	a, err := e.checkOwned(ctx, unitID, actor, r.Assignments.Get)
	if err != nil {
		return nil, e.finish(ctx, err)
	}
	return a, nil
}

// History returns the audit trail of unitID if actor may see the assignment.
func (e *Engine) History(ctx context.Context, unitID string, actor models.Principal) ([]models.TransitionEvent, error) {
	if _, err := e.Get(ctx, unitID, actor); err != nil {
		return nil, err
	}
	return e.trail.History(ctx, unitID)
}

// loadOwned locks the assignment for the rest of the transaction and hides
// it from actors with no relation to it.
func (e *Engine) loadOwned(ctx context.Context, r repomanager.Repos, unitID string, actor models.Principal) (*models.Assignment, error) {
	return e.checkOwned(ctx, unitID, actor, r.Assignments.GetForUpdate)
}

// checkOwned loads the row with get, then asks the guard whether actor may
// see it.
func (e *Engine) checkOwned(ctx context.Context, unitID string, actor models.Principal,
	get func(context.Context, string) (*models.Assignment, error)) (*models.Assignment, error) {
	a, err := get(ctx, unitID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrResourceNotFoundOrDenied
		}
		return nil, err
	}
	if err := e.guard.RequireOwnership(ctx, actor, authz.ResourceAssignment, a.ID); err != nil {
		return nil, err
	}
	return a, nil
}

// authorizeTransition enforces who may request each target status.
func authorizeTransition(a *models.Assignment, actor models.Principal, to models.Status) error {
	isOwnerTeacher := actor.Role == models.RoleTeacher && a.OwnerTeacherID == actor.UserID
	isSchoolStaff := actor.Role.IsSchoolStaff() && a.SchoolID == actor.SchoolID

	var allowed bool
	switch to {
	case models.StatusSubmitted:
		allowed = actor.Role == models.RoleStudent && a.StudentID == actor.UserID
	case models.StatusReviewed, models.StatusCompleted:
		allowed = isOwnerTeacher || isSchoolStaff
	case models.StatusReopened:
		allowed = isOwnerTeacher
	default:
		// viewed is only ever entered through Open.
		allowed = false
	}
	if !allowed {
		return common.ErrPermissionDenied
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, r repomanager.Repos, a *models.Assignment, actor models.Principal, to models.Status, meta map[string]string) (*models.TransitionEvent, error) {
	from := a.Status
	expected := a.Version
	now := e.Now()
	// Instances' clocks may disagree; an event never predates the previous
	// one of the same assignment.
	if !now.After(a.UpdatedAt) {
		now = a.UpdatedAt.Add(time.Microsecond)
	}

	a.Status = to
	if to == models.StatusReopened {
		a.ReopenCount++
	}
	a.UpdatedAt = now

	if err := r.Assignments.UpdateStatus(ctx, a, expected); err != nil {
		return nil, err
	}

	ev := &models.TransitionEvent{
		UnitID:      a.ID,
		EventType:   models.EventStatusTransition,
		ActorUserID: actor.UserID,
		FromStatus:  from,
		ToStatus:    to,
		Metadata:    meta,
		CreatedAt:   now,
	}
	if err := e.trail.Record(ctx, r.Events, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (e *Engine) applied(ctx context.Context, ev *models.TransitionEvent) {
	e.metrics.TransitionApplied(string(ev.ToStatus))
	e.log.Info(ctx, "transition applied",
		"unit_id", ev.UnitID, "actor", ev.ActorUserID, "from", string(ev.FromStatus), "to", string(ev.ToStatus))
}

// finish passes domain errors through untouched and logs everything else.
func (e *Engine) finish(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrConcurrencyConflict):
		e.metrics.ConcurrencyConflict()
		return common.ErrConcurrencyConflict
	case errors.Is(err, common.ErrInvalidTransition),
		errors.Is(err, common.ErrPermissionDenied),
		errors.Is(err, common.ErrResourceNotFoundOrDenied),
		errors.Is(err, common.ErrorValidation):
		return err
	default:
		e.log.Error(ctx, "workflow store failure", "error", err)
		return fmt.Errorf("workflow: %w", err)
	}
}
