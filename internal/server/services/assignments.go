package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/evidence"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gradekeeper/internal/server/workflow"
)

// EvidenceStore keeps exported histories and links to them.
type EvidenceStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PresignGet(ctx context.Context, key string) (string, time.Time, error)
}

// EvidenceBundle is the document written on export.
type EvidenceBundle struct {
	ExportedAt time.Time                `json:"exported_at"`
	ExportedBy string                   `json:"exported_by"`
	Assignment models.Assignment        `json:"assignment"`
	Events     []models.TransitionEvent `json:"events"`
}

// EvidenceLink points at an uploaded bundle.
type EvidenceLink struct {
	Key       string
	URL       string
	ExpiresAt time.Time
}

type AssignmentService struct {
	engine   *workflow.Engine
	notifier notify.Publisher
	evidence EvidenceStore
	log      logging.Logger

	Now func() time.Time
}

// NewAssignmentService wires the engine to its side channels. evidence may be
// nil, in which case exports fail.
func NewAssignmentService(engine *workflow.Engine, notifier notify.Publisher, ev EvidenceStore, l logging.Logger) *AssignmentService {
	if l == nil {
		l = logging.Nop{}
	}
	if notifier == nil {
		notifier = notify.NewLogPublisher(l)
	}
	return &AssignmentService{
		engine:   engine,
		notifier: notifier,
		evidence: ev,
		log:      l.With("module", "assignments"),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *AssignmentService) Create(ctx context.Context, actor models.Principal, studentID, title string) (*models.Assignment, error) {
	a, ev, err := s.engine.Create(ctx, actor, studentID, title)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, a, ev)
	return a, nil
}

// Get returns the assignment. When its student opens it for the first time
// this also marks it viewed.
func (s *AssignmentService) Get(ctx context.Context, actor models.Principal, unitID string) (*models.Assignment, error) {
	a, ev, err := s.engine.Open(ctx, unitID, actor)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		s.publish(ctx, a, ev)
	}
	return a, nil
}

func (s *AssignmentService) Transition(ctx context.Context, actor models.Principal, unitID string, to models.Status, reason string) (*models.TransitionEvent, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", common.ErrorValidation, to)
	}
	a, ev, err := s.engine.TransitionAssignment(ctx, unitID, actor, to, reason)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, a, ev)
	return ev, nil
}

func (s *AssignmentService) History(ctx context.Context, actor models.Principal, unitID string) ([]models.TransitionEvent, error) {
	return s.engine.History(ctx, unitID, actor)
}

var exportRoles = []models.Role{models.RoleTeacher, models.RoleAdmin, models.RoleOwner}

// ExportEvidence uploads the assignment together with its full history and
// returns a time-limited link. Only teachers and school staff may export.
func (s *AssignmentService) ExportEvidence(ctx context.Context, actor models.Principal, unitID string) (*EvidenceLink, error) {
	if err := s.engine.Guard().RequireRole(actor, exportRoles...); err != nil {
		return nil, err
	}
	a, err := s.engine.Get(ctx, unitID, actor)
	if err != nil {
		return nil, err
	}
	if s.evidence == nil {
		s.log.Error(ctx, "evidence export requested but no store is configured")
		return nil, common.ErrorInternal
	}
	events, err := s.engine.History(ctx, unitID, actor)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	body, err := json.MarshalIndent(EvidenceBundle{
		ExportedAt: now,
		ExportedBy: actor.UserID,
		Assignment: *a,
		Events:     events,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}

	key := evidence.Key(a.SchoolID, a.ID, now)
	if err := s.evidence.Put(ctx, key, body, "application/json"); err != nil {
		s.log.Error(ctx, "evidence upload failed", "unit_id", unitID, "error", err)
		return nil, common.ErrorInternal
	}
	url, exp, err := s.evidence.PresignGet(ctx, key)
	if err != nil {
		s.log.Error(ctx, "evidence presign failed", "unit_id", unitID, "error", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "evidence exported", "unit_id", unitID, "actor", actor.UserID, "key", key)
	return &EvidenceLink{Key: key, URL: url, ExpiresAt: exp}, nil
}

// publish runs after commit; a failure is logged and does not undo anything.
func (s *AssignmentService) publish(ctx context.Context, a *models.Assignment, ev *models.TransitionEvent) {
	if err := s.notifier.Publish(ctx, notify.FromEvent(a, ev)); err != nil {
		s.log.Warn(ctx, "notification failed", "unit_id", a.ID, "error", err)
	}
}
