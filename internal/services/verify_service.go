package services

import (
	"context"

	"github.com/audit-ledger/backend/internal/events"
	"github.com/audit-ledger/backend/internal/signing"
	"go.uber.org/zap"
)

// VerifyReport is the outcome of verifying one organization's chain.
type VerifyReport struct {
	OrgID    string `json:"org_id"`
	Entries  int    `json:"entries"`
	Valid    bool   `json:"valid"`
	BrokenAt int    `json:"broken_at"` // -1 when valid
}

// VerifyService recomputes signature chains against stored values. It is
// the only component allowed to raise integrity failures, and it never
// auto-corrects: a broken chain means reordering gone wrong or tampering,
// both of which need a human.
type VerifyService struct {
	repo      HotStore
	secrets   *signing.SecretCache
	publisher events.Publisher
	log       *zap.Logger
}

func NewVerifyService(repo HotStore, secrets *signing.SecretCache, publisher events.Publisher, log *zap.Logger) *VerifyService {
	return &VerifyService{repo: repo, secrets: secrets, publisher: publisher, log: log}
}

// VerifyOrg checks one organization's full hot-tier chain. The report is
// returned even when the chain is broken; the error is non-nil only for
// infrastructure failures.
func (s *VerifyService) VerifyOrg(ctx context.Context, orgID string) (*VerifyReport, error) {
	if orgID == "" {
		return nil, ErrUnscopedQuery
	}

	entries, err := s.repo.ListChain(ctx, orgID)
	if err != nil {
		return nil, &TransientError{Op: "chain read", Err: err}
	}

	secret, err := s.secrets.Get(ctx)
	if err != nil {
		return nil, err
	}

	valid, brokenAt := signing.VerifyChain(entries, secret)
	report := &VerifyReport{OrgID: orgID, Entries: len(entries), Valid: valid, BrokenAt: brokenAt}

	if !valid {
		s.log.Error("audit chain integrity broken",
			zap.String("org_id", orgID),
			zap.Int("broken_at", brokenAt),
			zap.Int("entries", len(entries)),
		)
		_ = s.publisher.Publish(ctx, events.TailChannel, events.Event{
			Type:  events.EventChainBroken,
			OrgID: orgID,
			Payload: map[string]any{
				"broken_at": brokenAt,
				"entries":   len(entries),
			},
		})
	}
	return report, nil
}

// VerifyAll sweeps every organization, for the periodic worker job.
// Broken chains are logged and reported but do not stop the sweep.
func (s *VerifyService) VerifyAll(ctx context.Context) ([]VerifyReport, error) {
	orgs, err := s.repo.OrgIDs(ctx)
	if err != nil {
		return nil, &TransientError{Op: "org listing", Err: err}
	}

	var reports []VerifyReport
	for _, org := range orgs {
		report, err := s.VerifyOrg(ctx, org)
		if err != nil {
			s.log.Error("chain verification failed", zap.String("org_id", org), zap.Error(err))
			continue
		}
		reports = append(reports, *report)
	}
	return reports, nil
}
