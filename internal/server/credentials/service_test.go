package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gradekeeper/internal/common"
	"github.com/dmitrijs2005/gradekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gradekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gradekeeper/internal/server/models"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/refreshtokens"
)

type recorder struct {
	metrics.Nop
	reasons []string
	purged  int64
}

func (r *recorder) CredentialRejected(kind, reason string) {
	r.reasons = append(r.reasons, kind+"/"+reason)
}

func (r *recorder) RefreshPurged(n int64) { r.purged += n }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *refreshtokens.MemoryRepository, *clock, *recorder) {
	t.Helper()
	clk := &clock{now: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)}
	signer := auth.NewSigner([]byte("test-secret"), "gradekeeper", "gradekeeper-api")
	signer.Now = clk.Now
	store := refreshtokens.NewMemoryRepository()
	rec := &recorder{}
	svc := NewService(signer, store, Options{AccessTTL: time.Hour, RefreshTTL: 7 * 24 * time.Hour, Metrics: rec})
	return svc, store, clk, rec
}

func TestAccessCredential_RoundTrip(t *testing.T) {
	svc, _, clk, _ := newTestService(t)

	principals := []models.Principal{
		{UserID: "u1", SchoolID: "s1", Role: models.RoleOwner},
		{UserID: "u2", SchoolID: "s1", Role: models.RoleTeacher},
		{UserID: "u3", SchoolID: "s2", Role: models.RoleStudent},
		{UserID: "u4", SchoolID: "s2", Role: models.RoleParent},
	}
	for _, p := range principals {
		tok, err := svc.IssueAccessCredential(p)
		if err != nil {
			t.Fatalf("IssueAccessCredential: %v", err)
		}

		clk.now = clk.now.Add(59 * time.Minute)
		claims, err := svc.VerifyAccessCredential(context.Background(), tok)
		clk.now = clk.now.Add(-59 * time.Minute)
		if err != nil {
			t.Fatalf("VerifyAccessCredential before expiry: %v", err)
		}
		if claims.UserID != p.UserID || claims.SchoolID != p.SchoolID || claims.Role != p.Role {
			t.Fatalf("claims %+v do not match principal %+v", claims, p)
		}
		if !claims.ExpiresAt.Equal(clk.now.Add(time.Hour)) {
			t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
		}
	}
}

func TestAccessCredential_FailuresAreOpaque(t *testing.T) {
	svc, _, clk, rec := newTestService(t)

	good, err := svc.IssueAccessCredential(models.Principal{UserID: "u1"})
	if err != nil {
		t.Fatalf("IssueAccessCredential: %v", err)
	}
	refresh, _, err := svc.IssueRefreshCredential(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssueRefreshCredential: %v", err)
	}

	tampered := good[:len(good)-2] + "xx"
	if tampered == good {
		tampered = good[:len(good)-2] + "yy"
	}

	for name, tok := range map[string]string{
		"malformed":     "garbage",
		"refresh token": refresh,
		"tampered":      tampered,
	} {
		_, err := svc.VerifyAccessCredential(context.Background(), tok)
		if err != common.ErrCredentialInvalid {
			t.Fatalf("%s: want exactly ErrCredentialInvalid, got %v", name, err)
		}
	}

	clk.now = clk.now.Add(2 * time.Hour)
	if _, err := svc.VerifyAccessCredential(context.Background(), good); err != common.ErrCredentialInvalid {
		t.Fatalf("expired: want exactly ErrCredentialInvalid, got %v", err)
	}

	if len(rec.reasons) != 4 || rec.reasons[3] != "access/expired" {
		t.Fatalf("unexpected recorded reasons: %v", rec.reasons)
	}
}

func TestRefreshCredential_IssueVerify(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	tok, id, err := svc.IssueRefreshCredential(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueRefreshCredential: %v", err)
	}
	if len(id) != 2*tokenIDBytes {
		t.Fatalf("token id should be %d hex chars, got %q", 2*tokenIDBytes, id)
	}
	if _, err := store.Find(ctx, id); err != nil {
		t.Fatalf("record not persisted: %v", err)
	}

	claims, err := svc.VerifyRefreshCredential(ctx, tok)
	if err != nil {
		t.Fatalf("VerifyRefreshCredential: %v", err)
	}
	if claims.TokenID != id || claims.UserID != "u1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestRefreshCredential_RevokeIsFinal(t *testing.T) {
	svc, _, _, rec := newTestService(t)
	ctx := context.Background()

	tok, id, err := svc.IssueRefreshCredential(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueRefreshCredential: %v", err)
	}

	if err := svc.Revoke(ctx, id); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := svc.Revoke(ctx, id); err != nil {
		t.Fatalf("Revoke must be idempotent: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.VerifyRefreshCredential(ctx, tok); err != common.ErrCredentialInvalid {
			t.Fatalf("revoked token accepted or wrong error: %v", err)
		}
	}
	if rec.reasons[0] != "refresh/revoked" {
		t.Fatalf("reason not recorded: %v", rec.reasons)
	}
}

func TestRefreshCredential_RevokeAll(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	a, _, _ := svc.IssueRefreshCredential(ctx, "u1")
	b, _, _ := svc.IssueRefreshCredential(ctx, "u1")
	other, _, _ := svc.IssueRefreshCredential(ctx, "u2")

	if err := svc.RevokeAll(ctx, "u1"); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	for _, tok := range []string{a, b} {
		if _, err := svc.VerifyRefreshCredential(ctx, tok); !errors.Is(err, common.ErrCredentialInvalid) {
			t.Fatalf("device token survived RevokeAll: %v", err)
		}
	}
	if _, err := svc.VerifyRefreshCredential(ctx, other); err != nil {
		t.Fatalf("other user's token revoked: %v", err)
	}
}

func TestRefreshCredential_ExpiredRecordIsPurgedLazily(t *testing.T) {
	svc, store, clk, _ := newTestService(t)
	ctx := context.Background()

	tok, id, err := svc.IssueRefreshCredential(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueRefreshCredential: %v", err)
	}

	// Shorten the stored expiry below the token's own exp.
	if err := store.Create(ctx, &models.RefreshToken{ID: id, UserID: "u1", IssuedAt: clk.now, ExpiresAt: clk.now.Add(time.Minute)}); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	clk.now = clk.now.Add(time.Hour)

	if _, err := svc.VerifyRefreshCredential(ctx, tok); err != common.ErrCredentialInvalid {
		t.Fatalf("want ErrCredentialInvalid, got %v", err)
	}
	if _, err := store.Find(ctx, id); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expired record should be deleted, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	svc, store, clk, rec := newTestService(t)
	ctx := context.Background()
	base := clk.now

	for id, exp := range map[string]time.Time{
		"gone-1": base.Add(-time.Hour),
		"gone-2": base,
		"live":   base.Add(time.Second),
	} {
		if err := store.Create(ctx, &models.RefreshToken{ID: id, UserID: "u1", IssuedAt: base.Add(-2 * time.Hour), ExpiresAt: exp}); err != nil {
			t.Fatalf("store.Create: %v", err)
		}
	}

	n, err := svc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 2 || rec.purged != 2 {
		t.Fatalf("purged %d (metric %d), want 2", n, rec.purged)
	}
	if _, err := store.Find(ctx, "live"); err != nil {
		t.Fatalf("live record purged: %v", err)
	}
}

type failingStore struct {
	refreshtokens.Repository
	err error
}

func (f failingStore) Find(context.Context, string) (*models.RefreshToken, error) { return nil, f.err }
func (f failingStore) Create(context.Context, *models.RefreshToken) error          { return nil }

func TestRefreshCredential_StoreErrorIsOpaque(t *testing.T) {
	signer := auth.NewSigner([]byte("k"), "i", "a")
	svc := NewService(signer, failingStore{err: errors.New("connection reset")}, Options{AccessTTL: time.Hour, RefreshTTL: time.Hour})

	tok, _, err := svc.IssueRefreshCredential(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IssueRefreshCredential: %v", err)
	}
	if _, err := svc.VerifyRefreshCredential(context.Background(), tok); err != common.ErrCredentialInvalid {
		t.Fatalf("want ErrCredentialInvalid, got %v", err)
	}
}

func TestIssueRefreshCredential_TokenIDFailure(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	svc.newTokenID = func() (string, error) { return "", errors.New("entropy") }

	if _, _, err := svc.IssueRefreshCredential(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRevokeCredential(t *testing.T) {
	svc, store, _, rec := newTestService(t)
	ctx := context.Background()

	tok, id, err := svc.IssueRefreshCredential(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueRefreshCredential: %v", err)
	}

	if err := svc.RevokeCredential(ctx, tok, "u2"); err != common.ErrCredentialInvalid {
		t.Fatalf("foreign subject must be rejected, got %v", err)
	}
	if _, err := store.Find(ctx, id); err != nil {
		t.Fatalf("record must survive a foreign revoke: %v", err)
	}

	if err := svc.RevokeCredential(ctx, tok, "u1"); err != nil {
		t.Fatalf("RevokeCredential: %v", err)
	}
	if err := svc.RevokeCredential(ctx, tok, "u1"); err != nil {
		t.Fatalf("revoking an already revoked credential must succeed: %v", err)
	}
	if _, err := store.Find(ctx, id); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("record must be gone, got %v", err)
	}

	if err := svc.RevokeCredential(ctx, "not-a-token", "u1"); err != common.ErrCredentialInvalid {
		t.Fatalf("garbage must be rejected, got %v", err)
	}
	if rec.reasons[0] != "refresh/subject_mismatch" {
		t.Fatalf("reason not recorded: %v", rec.reasons)
	}
}
