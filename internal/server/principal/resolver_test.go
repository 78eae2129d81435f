package principal

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/server/credentials"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
)

type fakeUsers struct {
	users map[string]*models.User
	err   error
	calls int
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func TestResolve_UsesLiveProfileNotClaims(t *testing.T) {
	fu := &fakeUsers{users: map[string]*models.User{
		"u1": {ID: "u1", SchoolID: "school-new", Role: models.RoleAdmin, DisplayName: "Ann", Email: "ann@example.com"},
	}}
	r := NewResolver(fu, nil)

	claims := &credentials.AccessClaims{UserID: "u1", SchoolID: "school-old", Role: models.RoleTeacher}
	p, err := r.Resolve(context.Background(), claims)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.SchoolID != "school-new" || p.Role != models.RoleAdmin {
		t.Fatalf("principal must come from the store, got %+v", p)
	}
	if p.DisplayName != "Ann" || p.Email != "ann@example.com" {
		t.Fatalf("display attributes missing: %+v", p)
	}

	// Role change takes effect on the next request.
	fu.users["u1"].Role = models.RoleTeacher
	p, _ = r.Resolve(context.Background(), claims)
	if p.Role != models.RoleTeacher || fu.calls != 2 {
		t.Fatalf("profile must be re-read on every call: %+v calls=%d", p, fu.calls)
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := NewResolver(&fakeUsers{users: map[string]*models.User{}}, nil)
	_, err := r.ResolveUser(context.Background(), "ghost")
	if !errors.Is(err, common.ErrPrincipalNotFound) {
		t.Fatalf("want ErrPrincipalNotFound, got %v", err)
	}
}

func TestResolve_UnknownRoleFailsClosed(t *testing.T) {
	r := NewResolver(&fakeUsers{users: map[string]*models.User{"u1": {ID: "u1", Role: "superuser"}}}, nil)
	_, err := r.ResolveUser(context.Background(), "u1")
	if !errors.Is(err, common.ErrPrincipalNotFound) {
		t.Fatalf("want ErrPrincipalNotFound, got %v", err)
	}
}

func TestResolve_StoreError(t *testing.T) {
	r := NewResolver(&fakeUsers{err: errors.New("db down")}, nil)
	_, err := r.ResolveUser(context.Background(), "u1")
	if err == nil || errors.Is(err, common.ErrPrincipalNotFound) {
		t.Fatalf("store failure must not look like a missing principal: %v", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("empty context must not carry a principal")
	}
	p := models.Principal{UserID: "u1", Role: models.RoleStudent}
	got, ok := FromContext(WithPrincipal(context.Background(), p))
	if !ok || got != p {
		t.Fatalf("got %+v, %v", got, ok)
	}
}
