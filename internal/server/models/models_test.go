package models

import (
	"testing"
	"time"
)

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleOwner, RoleAdmin, RoleTeacher, RoleStudent, RoleParent} {
		if !r.Valid() {
			t.Fatalf("%q should be valid", r)
		}
	}
	if Role("janitor").Valid() {
		t.Fatalf("unknown role reported valid")
	}
	if !RoleAdmin.IsSchoolStaff() || RoleTeacher.IsSchoolStaff() {
		t.Fatalf("IsSchoolStaff mismatch")
	}
}

func TestStatus_Valid(t *testing.T) {
	if len(Statuses) != 6 {
		t.Fatalf("expected 6 statuses, got %d", len(Statuses))
	}
	if Status("archived").Valid() {
		t.Fatalf("unknown status reported valid")
	}
	if !StatusReopened.Valid() {
		t.Fatalf("reopened should be valid")
	}
}

func TestRefreshToken_IsExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rt := &RefreshToken{ExpiresAt: now}

	if !rt.IsExpired(now) {
		t.Fatalf("record expiring exactly now must be expired")
	}
	if rt.IsExpired(now.Add(-time.Second)) {
		t.Fatalf("record must not be expired before its expiry")
	}
}

func TestUser_Principal(t *testing.T) {
	u := &User{ID: "u1", SchoolID: "s1", Role: RoleTeacher, DisplayName: "Ann", Email: "ann@example.com", PasswordHash: []byte("x")}
	p := u.Principal()
	want := Principal{UserID: "u1", SchoolID: "s1", Role: RoleTeacher, DisplayName: "Ann", Email: "ann@example.com"}
	if p != want {
		t.Fatalf("got %+v want %+v", p, want)
	}
}
