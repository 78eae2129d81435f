package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/server/audit"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/assignments"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gradekeeper/internal/server/workflow"
)

func TestAssignmentFlowPublishesAfterEachChange(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.assign.Create(ctx, e.teacher, e.student.UserID, "Fractions worksheet")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := e.assign.Get(ctx, e.student, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusViewed {
		t.Fatalf("status after student read = %s", got.Status)
	}

	if _, err := e.assign.Transition(ctx, e.student, a.ID, models.StatusSubmitted, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(e.pub.got) != 3 {
		t.Fatalf("want 3 notifications, got %d", len(e.pub.got))
	}
	wantTo := []models.Status{models.StatusAssigned, models.StatusViewed, models.StatusSubmitted}
	for i, n := range e.pub.got {
		if n.ToStatus != wantTo[i] || n.SchoolID != "s1" || n.UnitID != a.ID {
			t.Fatalf("notification %d = %+v", i, n)
		}
	}
	if e.pub.got[0].EventType != models.EventCreated {
		t.Fatalf("first notification should be the creation, got %s", e.pub.got[0].EventType)
	}
}

// txOnlyStore serves transactions normally but fails plain assignment reads.
type txOnlyStore struct {
	repomanager.Store
}

type unreadableAssignments struct {
	assignments.Repository
}

func (unreadableAssignments) Get(context.Context, string) (*models.Assignment, error) {
	return nil, errors.New("read replica down")
}

func (s txOnlyStore) Repos() repomanager.Repos {
	r := s.Store.Repos()
	r.Assignments = unreadableAssignments{r.Assignments}
	return r
}

func TestTransitionPublishesTheRowItWrote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.assign.Create(ctx, e.teacher, e.student.UserID, "Poem analysis")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.assign.Get(ctx, e.student, a.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	store := txOnlyStore{e.store}
	pub := &capturePublisher{}
	svc := NewAssignmentService(workflow.NewEngine(store, audit.NewTrail(store), nil, nil, nil), pub, nil, nil)

	ev, err := svc.Transition(ctx, e.student, a.ID, models.StatusSubmitted, "")
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if len(pub.got) != 1 {
		t.Fatalf("want 1 notification without re-reading the assignment, got %d", len(pub.got))
	}
	n := pub.got[0]
	if n.EventID != ev.ID || n.FromStatus != models.StatusViewed || n.ToStatus != models.StatusSubmitted || n.UnitID != a.ID || n.StudentID != e.student.UserID {
		t.Fatalf("notification does not match the committed event: %+v", n)
	}
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.pub.err = errors.New("redis down")

	a, err := e.assign.Create(ctx, e.teacher, e.student.UserID, "Map reading")
	if err != nil {
		t.Fatalf("Create must succeed even if notification fails: %v", err)
	}
	if _, err := e.assign.Get(ctx, e.student, a.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	hist, err := e.assign.History(ctx, e.teacher, a.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("want 2 events, got %d", len(hist))
	}
}

func TestTransition_UnknownStatus(t *testing.T) {
	e := newEnv(t)
	_, err := e.assign.Transition(context.Background(), e.teacher, "whatever", models.Status("graded"), "")
	mustFail(t, err, common.ErrorValidation)
}

func TestGet_ParentDoesNotMarkViewed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.assign.Create(ctx, e.teacher, e.student.UserID, "Poem")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := e.assign.Get(ctx, e.parent, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusAssigned {
		t.Fatalf("parent read changed status to %s", got.Status)
	}
	_, err = e.assign.Get(ctx, e.otherTeacher, a.ID)
	mustFail(t, err, common.ErrResourceNotFoundOrDenied)
}

func TestExportEvidence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.assign.Create(ctx, e.teacher, e.student.UserID, "Lab report")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.assign.Get(ctx, e.student, a.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	link, err := e.assign.ExportEvidence(ctx, e.admin, a.ID)
	if err != nil {
		t.Fatalf("ExportEvidence: %v", err)
	}
	if !strings.HasPrefix(link.Key, "schools/s1/assignments/"+a.ID+"/") {
		t.Fatalf("unexpected key %q", link.Key)
	}
	if link.URL != "https://evidence.example/"+link.Key {
		t.Fatalf("unexpected url %q", link.URL)
	}

	var bundle EvidenceBundle
	if err := json.Unmarshal(e.ev.puts[link.Key], &bundle); err != nil {
		t.Fatalf("bundle: %v", err)
	}
	if bundle.Assignment.ID != a.ID || bundle.ExportedBy != e.admin.UserID {
		t.Fatalf("unexpected bundle header: %+v", bundle)
	}
	if len(bundle.Events) != 2 || bundle.Events[1].ToStatus != models.StatusViewed {
		t.Fatalf("unexpected bundle events: %+v", bundle.Events)
	}
}

func TestExportEvidence_Denials(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.assign.Create(ctx, e.teacher, e.student.UserID, "Lab report")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = e.assign.ExportEvidence(ctx, e.student, a.ID)
	mustFail(t, err, common.ErrPermissionDenied)
	_, err = e.assign.ExportEvidence(ctx, e.parent, a.ID)
	mustFail(t, err, common.ErrPermissionDenied)
	_, err = e.assign.ExportEvidence(ctx, e.otherTeacher, a.ID)
	mustFail(t, err, common.ErrResourceNotFoundOrDenied)

	if len(e.ev.puts) != 0 {
		t.Fatalf("nothing should have been uploaded, got %d objects", len(e.ev.puts))
	}
}

func TestExportEvidence_StoreFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.assign.Create(ctx, e.teacher, e.student.UserID, "Lab report")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	e.ev.putErr = errors.New("bucket missing")
	_, err = e.assign.ExportEvidence(ctx, e.teacher, a.ID)
	mustFail(t, err, common.ErrorInternal)

	e.ev.putErr = nil
	e.ev.presignErr = errors.New("clock skew")
	_, err = e.assign.ExportEvidence(ctx, e.teacher, a.ID)
	mustFail(t, err, common.ErrorInternal)

	e.assign.evidence = nil
	_, err = e.assign.ExportEvidence(ctx, e.teacher, a.ID)
	mustFail(t, err, common.ErrorInternal)
}
