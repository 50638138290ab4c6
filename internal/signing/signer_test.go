package signing

import (
	"testing"
	"time"

	"github.com/audit-ledger/backend/internal/models"
	"github.com/audit-ledger/backend/internal/retention"
	"github.com/google/uuid"
)

var testSecret = []byte("test-signing-secret")

func makeChain(t *testing.T, orgID string, n int) []models.AuditLogEntry {
	t.Helper()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := make([]models.AuditLogEntry, 0, n)
	prev := retention.GenesisSignature

	for i := 0; i < n; i++ {
		e := models.AuditLogEntry{
			LogID:         uuid.New(),
			OrgID:         orgID,
			ActorID:       "u1",
			Action:        models.ActionDocumentUpdated,
			Resource:      models.ResourceDocument,
			ResourceID:    "doc1",
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			PrevSignature: prev,
			ExpiresAt:     base.Add(retention.HotTTL),
		}
		e.Signature = Sign(&e, prev, testSecret)
		prev = e.Signature
		entries = append(entries, e)
	}
	return entries
}

func TestSignDeterministic(t *testing.T) {
	entries := makeChain(t, "org1", 1)
	e := entries[0]

	first := Sign(&e, retention.GenesisSignature, testSecret)
	second := Sign(&e, retention.GenesisSignature, testSecret)
	if first != second {
		t.Errorf("Sign is not deterministic: %s != %s", first, second)
	}

	other := Sign(&e, "different-prev", testSecret)
	if first == other {
		t.Error("Sign must depend on prevSignature")
	}
}

func TestCanonicalizeIncludesChanges(t *testing.T) {
	entries := makeChain(t, "org1", 1)
	e := entries[0]

	without := string(Canonicalize(&e, e.PrevSignature))
	e.Changes = &models.ChangeSet{
		Before: map[string]any{"title": "a"},
		After:  map[string]any{"title": "b"},
	}
	with := string(Canonicalize(&e, e.PrevSignature))
	if without == with {
		t.Error("changes snapshot must be part of the canonical form")
	}
}

func TestCanonicalizeFieldBoundaries(t *testing.T) {
	entries := makeChain(t, "org1", 1)
	a := entries[0]
	b := a

	// Adjacent free-text fields that shuffle a byte across the boundary
	// must not canonicalize identically.
	a.ActorID, a.Action = "u1\nX", "Y"
	b.ActorID, b.Action = "u1", "X\nY"

	if string(Canonicalize(&a, a.PrevSignature)) == string(Canonicalize(&b, b.PrevSignature)) {
		t.Error("distinct entries share a canonical form")
	}
	if Sign(&a, a.PrevSignature, testSecret) == Sign(&b, b.PrevSignature, testSecret) {
		t.Error("distinct entries share a signature")
	}
}

func TestVerifyChainValid(t *testing.T) {
	entries := makeChain(t, "org1", 10)

	valid, brokenAt := VerifyChain(entries, testSecret)
	if !valid {
		t.Fatalf("expected valid chain, broken at %d", brokenAt)
	}
	if brokenAt != -1 {
		t.Errorf("brokenAt = %d, want -1", brokenAt)
	}
}

func TestVerifyChainEmpty(t *testing.T) {
	valid, brokenAt := VerifyChain(nil, testSecret)
	if !valid || brokenAt != -1 {
		t.Errorf("empty chain should verify, got (%v, %d)", valid, brokenAt)
	}
}

func TestVerifyChainUnsortedInput(t *testing.T) {
	entries := makeChain(t, "org1", 5)

	// Shuffle: verification must re-establish timestamp order itself.
	shuffled := []models.AuditLogEntry{entries[3], entries[0], entries[4], entries[2], entries[1]}
	valid, brokenAt := VerifyChain(shuffled, testSecret)
	if !valid {
		t.Errorf("expected valid chain from unsorted input, broken at %d", brokenAt)
	}
}

func TestVerifyChainTamperDetection(t *testing.T) {
	tamper := []struct {
		name   string
		mutate func(e *models.AuditLogEntry)
	}{
		{"actor", func(e *models.AuditLogEntry) { e.ActorID = "intruder" }},
		{"action", func(e *models.AuditLogEntry) { e.Action = models.ActionDocumentDeleted }},
		{"resource", func(e *models.AuditLogEntry) { e.Resource = models.ResourceProject }},
		{"resource_id", func(e *models.AuditLogEntry) { e.ResourceID = "other" }},
		{"timestamp", func(e *models.AuditLogEntry) { e.Timestamp = e.Timestamp.Add(time.Second) }},
		{"changes", func(e *models.AuditLogEntry) {
			e.Changes = &models.ChangeSet{After: map[string]any{"x": 1}}
		}},
	}

	for _, tt := range tamper {
		for _, target := range []int{0, 3, 7} {
			t.Run(tt.name, func(t *testing.T) {
				entries := makeChain(t, "org1", 8)
				tt.mutate(&entries[target])

				valid, brokenAt := VerifyChain(entries, testSecret)
				if valid {
					t.Fatalf("tampered chain (field %s, index %d) verified as valid", tt.name, target)
				}
				if brokenAt < target {
					t.Errorf("brokenAt = %d, want >= %d", brokenAt, target)
				}
			})
		}
	}
}

func TestVerifyChainDeletedEntry(t *testing.T) {
	entries := makeChain(t, "org1", 6)

	// Remove a middle entry: the next entry's prev link no longer matches.
	gapped := append(entries[:2:2], entries[3:]...)
	valid, brokenAt := VerifyChain(gapped, testSecret)
	if valid {
		t.Fatal("chain with deleted entry verified as valid")
	}
	if brokenAt < 2 {
		t.Errorf("brokenAt = %d, want >= 2", brokenAt)
	}
}

func TestVerifyChainWrongSecret(t *testing.T) {
	entries := makeChain(t, "org1", 3)
	valid, _ := VerifyChain(entries, []byte("wrong-secret"))
	if valid {
		t.Error("chain verified with the wrong secret")
	}
}

func TestVerifyChainFromCheckpoint(t *testing.T) {
	entries := makeChain(t, "org1", 10)

	// A suffix anchored at its own first prev_signature must verify
	// without the earlier history.
	valid, brokenAt := VerifyChain(entries[4:], testSecret)
	if !valid {
		t.Errorf("checkpoint suffix should verify, broken at %d", brokenAt)
	}
}
