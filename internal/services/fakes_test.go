package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/audit-ledger/backend/internal/config"
	"github.com/audit-ledger/backend/internal/events"
	"github.com/audit-ledger/backend/internal/models"
	"github.com/audit-ledger/backend/internal/repositories"
	"github.com/audit-ledger/backend/internal/retention"
	"github.com/google/uuid"
)

func testConfig() *config.Config {
	return &config.Config{
		HotTTL:                retention.HotTTL,
		ProcessTimeout:        5 * time.Second,
		ChainMaxRetries:       5,
		SweepBatchSize:        100,
		ArchiveAlertThreshold: 3,
		ExpiryStream:          "audit:expiry",
	}
}

// fakeHotStore mirrors the repository semantics in memory: chain-head
// CAS, message dedup, keyset pagination.
type fakeHotStore struct {
	mu        sync.Mutex
	entries   []models.AuditLogEntry
	byMessage map[string]bool
	heads     map[string]repositories.ChainTip

	conflicts int // forced ErrChainConflict returns before accepting
	insertErr error
	listErr   error
	headErr   error
	getErr    error
	deleteErr error
}

func newFakeHotStore() *fakeHotStore {
	return &fakeHotStore{
		byMessage: make(map[string]bool),
		heads:     make(map[string]repositories.ChainTip),
	}
}

func (f *fakeHotStore) ChainHead(ctx context.Context, orgID string) (repositories.ChainTip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return repositories.ChainTip{}, f.headErr
	}
	if tip, ok := f.heads[orgID]; ok {
		return tip, nil
	}
	return repositories.ChainTip{Signature: retention.GenesisSignature}, nil
}

func (f *fakeHotStore) AlreadyApplied(ctx context.Context, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byMessage[messageID], nil
}

func (f *fakeHotStore) Insert(ctx context.Context, e *models.AuditLogEntry, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.conflicts > 0 {
		f.conflicts--
		return repositories.ErrChainConflict
	}
	if f.byMessage[messageID] {
		return repositories.ErrDuplicateMessage
	}
	tip, ok := f.heads[e.OrgID]
	if !ok {
		tip = repositories.ChainTip{Signature: retention.GenesisSignature}
	}
	if e.PrevSignature != tip.Signature {
		return repositories.ErrChainConflict
	}
	f.heads[e.OrgID] = repositories.ChainTip{Signature: e.Signature, Time: e.Timestamp, LogID: e.LogID}
	f.byMessage[messageID] = true
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeHotStore) GetByID(ctx context.Context, orgID string, logID uuid.UUID) (*models.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := range f.entries {
		if f.entries[i].OrgID == orgID && f.entries[i].LogID == logID {
			e := f.entries[i]
			return &e, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeHotStore) List(ctx context.Context, orgID string, filter repositories.EntryFilter, pageSize int, after *repositories.Cursor) ([]models.AuditLogEntry, *repositories.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, nil, f.listErr
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}

	matched := f.chainOrder(orgID)
	var out []models.AuditLogEntry
	for _, e := range matched {
		if filter.Actor != nil && e.ActorID != *filter.Actor {
			continue
		}
		if filter.Action != nil && e.Action != *filter.Action {
			continue
		}
		if filter.Resource != nil && e.Resource != *filter.Resource {
			continue
		}
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !e.Timestamp.Before(*filter.To) {
			continue
		}
		if after != nil {
			if e.Timestamp.Before(after.Timestamp) {
				continue
			}
			if e.Timestamp.Equal(after.Timestamp) && e.LogID.String() <= after.LogID.String() {
				continue
			}
		}
		out = append(out, e)
	}

	var next *repositories.Cursor
	if len(out) > pageSize {
		out = out[:pageSize]
		last := out[len(out)-1]
		next = &repositories.Cursor{Timestamp: last.Timestamp, LogID: last.LogID}
	}
	return out, next, nil
}

func (f *fakeHotStore) ListChain(ctx context.Context, orgID string) ([]models.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.chainOrder(orgID), nil
}

func (f *fakeHotStore) OrgIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var orgs []string
	for _, e := range f.entries {
		if !seen[e.OrgID] {
			seen[e.OrgID] = true
			orgs = append(orgs, e.OrgID)
		}
	}
	return orgs, nil
}

func (f *fakeHotStore) SelectExpired(ctx context.Context, now time.Time, limit int) ([]models.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditLogEntry
	for _, e := range f.entries {
		if !e.ExpiresAt.After(now) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeHotStore) Delete(ctx context.Context, logID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i := range f.entries {
		if f.entries[i].LogID == logID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeHotStore) chainOrder(orgID string) []models.AuditLogEntry {
	var out []models.AuditLogEntry
	for _, e := range f.entries {
		if e.OrgID == orgID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].LogID.String() < out[j].LogID.String()
	})
	return out
}

type fakeSecretSource struct {
	secret []byte
	err    error
}

func (f *fakeSecretSource) FetchSigningSecret(ctx context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.secret, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(ctx context.Context, stream string, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type fakeAppender struct {
	mu       sync.Mutex
	payloads []any
	err      error
}

func (f *fakeAppender) Add(ctx context.Context, stream string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, payload)
	return "1-0", nil
}

type fakeColdStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	puts     int
	failures int // fail this many Put calls before succeeding
}

func newFakeColdStore() *fakeColdStore {
	return &fakeColdStore{objects: make(map[string][]byte)}
}

func (f *fakeColdStore) Put(ctx context.Context, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failures > 0 {
		f.failures--
		return errors.New("cold store unavailable")
	}
	f.objects[key] = body
	return nil
}
