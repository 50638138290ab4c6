package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/audit-ledger/backend/internal/events"
	"github.com/audit-ledger/backend/internal/models"
	"github.com/audit-ledger/backend/internal/retention"
	"github.com/audit-ledger/backend/internal/signing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// seedChain writes n correctly signed, linked entries for orgID.
func seedChain(store *fakeHotStore, orgID string, secret []byte, n int) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	prev := retention.GenesisSignature
	for i := 0; i < n; i++ {
		e := models.AuditLogEntry{
			LogID:      uuid.New(),
			OrgID:      orgID,
			ActorID:    "u1",
			Action:     models.ActionProjectUpdated,
			Resource:   models.ResourceProject,
			ResourceID: "p1",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			ExpiresAt:  base.Add(retention.HotTTL),
		}
		e.PrevSignature = prev
		e.Signature = signing.Sign(&e, prev, secret)
		prev = e.Signature
		store.entries = append(store.entries, e)
	}
}

func TestVerifyOrgValidChain(t *testing.T) {
	secret := []byte("verify-secret")
	store := newFakeHotStore()
	seedChain(store, "org1", secret, 5)
	pub := &fakePublisher{}
	svc := NewVerifyService(store, signing.NewSecretCache(&fakeSecretSource{secret: secret}), pub, zap.NewNop())

	report, err := svc.VerifyOrg(context.Background(), "org1")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Errorf("valid = false, broken at %d", report.BrokenAt)
	}
	if report.Entries != 5 {
		t.Errorf("entries = %d, want 5", report.Entries)
	}
	if report.BrokenAt != -1 {
		t.Errorf("brokenAt = %d, want -1", report.BrokenAt)
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events for a valid chain", len(pub.events))
	}
}

func TestVerifyOrgTamperedChain(t *testing.T) {
	secret := []byte("verify-secret")
	store := newFakeHotStore()
	seedChain(store, "org1", secret, 5)
	store.entries[2].ResourceID = "someone-else"
	pub := &fakePublisher{}
	svc := NewVerifyService(store, signing.NewSecretCache(&fakeSecretSource{secret: secret}), pub, zap.NewNop())

	report, err := svc.VerifyOrg(context.Background(), "org1")
	if err != nil {
		t.Fatal(err)
	}
	if report.Valid {
		t.Fatal("tampered chain reported valid")
	}
	if report.BrokenAt != 2 {
		t.Errorf("brokenAt = %d, want 2", report.BrokenAt)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != events.EventChainBroken || ev.OrgID != "org1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestVerifyOrgEmptyAndUnscoped(t *testing.T) {
	secret := []byte("s")
	svc := NewVerifyService(newFakeHotStore(), signing.NewSecretCache(&fakeSecretSource{secret: secret}), &fakePublisher{}, zap.NewNop())

	if _, err := svc.VerifyOrg(context.Background(), ""); !errors.Is(err, ErrUnscopedQuery) {
		t.Errorf("unscoped: err = %v, want ErrUnscopedQuery", err)
	}

	report, err := svc.VerifyOrg(context.Background(), "org-empty")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid || report.Entries != 0 {
		t.Errorf("empty chain report = %+v, want valid with 0 entries", report)
	}
}

func TestVerifyAllIsolatesOrgs(t *testing.T) {
	secret := []byte("verify-secret")
	store := newFakeHotStore()
	seedChain(store, "org1", secret, 3)
	seedChain(store, "org2", secret, 3)
	store.entries[4].ActorID = "intruder" // second entry of org2
	pub := &fakePublisher{}
	svc := NewVerifyService(store, signing.NewSecretCache(&fakeSecretSource{secret: secret}), pub, zap.NewNop())

	reports, err := svc.VerifyAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	byOrg := make(map[string]VerifyReport)
	for _, r := range reports {
		byOrg[r.OrgID] = r
	}
	if !byOrg["org1"].Valid {
		t.Error("org1 chain should be untouched")
	}
	if byOrg["org2"].Valid {
		t.Error("org2 tampering went undetected")
	}
	if byOrg["org2"].BrokenAt != 1 {
		t.Errorf("org2 brokenAt = %d, want 1", byOrg["org2"].BrokenAt)
	}
}

func TestVerifySecretFetchFailure(t *testing.T) {
	store := newFakeHotStore()
	seedChain(store, "org1", []byte("s"), 1)
	src := &fakeSecretSource{err: errors.New("store down")}
	svc := NewVerifyService(store, signing.NewSecretCache(src), &fakePublisher{}, zap.NewNop())

	if _, err := svc.VerifyOrg(context.Background(), "org1"); err == nil {
		t.Error("expected error when signing secret is unavailable")
	}
}
