package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/server/audit"
	"github.com/dmitrijs2005/gradekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gradekeeper/internal/server/credentials"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gradekeeper/internal/server/principal"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gradekeeper/internal/server/workflow"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-horse"

type env struct {
	store   *memory.Store
	refresh *refreshtokens.MemoryRepository
	creds   *credentials.Service
	auth    *AuthService
	assign  *AssignmentService
	pub     *capturePublisher
	ev      *fakeEvidence

	teacher, student, parent, admin, otherTeacher models.Principal
}

type capturePublisher struct {
	mu  sync.Mutex
	got []notify.Notification
	err error
}

func (c *capturePublisher) Publish(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return c.err
}

type fakeEvidence struct {
	puts       map[string][]byte
	putErr     error
	presignErr error
}

func (f *fakeEvidence) Put(_ context.Context, key string, body []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = body
	return nil
}

func (f *fakeEvidence) PresignGet(_ context.Context, key string) (string, time.Time, error) {
	if f.presignErr != nil {
		return "", time.Time{}, f.presignErr
	}
	return "https://evidence.example/" + key, time.Date(2026, 9, 1, 10, 15, 0, 0, time.UTC), nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	refresh := refreshtokens.NewMemoryRepository()
	signer := auth.NewSigner([]byte("test-secret"), "gradekeeper", "gradekeeper-api")
	creds := credentials.NewService(signer, refresh, credentials.Options{AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour})
	resolver := principal.NewResolver(store.Repos().Users, nil)

	as := NewAuthService(store, creds, resolver, nil)
	as.BcryptCost = bcrypt.MinCost

	pub := &capturePublisher{}
	ev := &fakeEvidence{}
	engine := workflow.NewEngine(store, audit.NewTrail(store), nil, nil, nil)

	e := &env{
		store: store, refresh: refresh, creds: creds, auth: as, pub: pub, ev: ev,
		assign: NewAssignmentService(engine, pub, ev, nil),
	}

	add := func(school string, role models.Role, email string) models.Principal {
		u, err := as.AddUser(ctx, NewUser{SchoolID: school, Role: role, DisplayName: email, Email: email, Password: testPassword})
		if err != nil {
			t.Fatalf("AddUser %s: %v", email, err)
		}
		return u.Principal()
	}
	e.teacher = add("s1", models.RoleTeacher, "teacher@school.test")
	e.student = add("s1", models.RoleStudent, "student@school.test")
	e.parent = add("s1", models.RoleParent, "parent@school.test")
	e.admin = add("s1", models.RoleAdmin, "admin@school.test")
	e.otherTeacher = add("s2", models.RoleTeacher, "teacher@other.test")

	if err := as.LinkGuardian(ctx, "parent@school.test", "student@school.test"); err != nil {
		t.Fatalf("LinkGuardian: %v", err)
	}
	return e
}

func countRecords(t *testing.T, r *refreshtokens.MemoryRepository, now time.Time) int64 {
	t.Helper()
	n, err := r.DeleteExpired(context.Background(), now.Add(1000*time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	return n
}

func mustFail(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}
