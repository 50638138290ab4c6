package services

import (
	"context"
	"time"

	"github.com/audit-ledger/backend/internal/config"
	"github.com/audit-ledger/backend/internal/events"
	"github.com/audit-ledger/backend/internal/models"
	"go.uber.org/zap"
)

// SweeperService is the expire-and-notify half of the hot-tier
// lifecycle: it finds rows past their TTL, publishes a change-feed
// notification carrying the full last-known row, then deletes the row.
// The delete happens strictly after the publish succeeds, so an entry
// can never leave the hot tier without a notification on the feed.
type SweeperService struct {
	repo      HotStore
	publisher StreamAppender
	cfg       *config.Config
	log       *zap.Logger
}

func NewSweeperService(repo HotStore, publisher StreamAppender, cfg *config.Config, log *zap.Logger) *SweeperService {
	return &SweeperService{repo: repo, publisher: publisher, cfg: cfg, log: log}
}

// SweepExpired processes one batch of expired rows and returns how many
// were swept. Failures on individual rows are logged and left for the
// next sweep.
func (s *SweeperService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.repo.SelectExpired(ctx, time.Now().UTC(), s.cfg.SweepBatchSize)
	if err != nil {
		return 0, &TransientError{Op: "select expired", Err: err}
	}

	swept := 0
	for i := range expired {
		entry := expired[i]

		_, err := s.publisher.Add(ctx, s.cfg.ExpiryStream, events.ExpiryNotification{
			Namespace: models.Namespace,
			Entry:     entry,
		})
		if err != nil {
			s.log.Error("expiry notification publish failed, row kept",
				zap.String("log_id", entry.LogID.String()),
				zap.Error(err),
			)
			continue
		}

		if err := s.repo.Delete(ctx, entry.LogID); err != nil {
			// The notification is out; a duplicate on the next sweep is
			// fine, the archiver is idempotent.
			s.log.Warn("expired row delete failed, will re-sweep",
				zap.String("log_id", entry.LogID.String()),
				zap.Error(err),
			)
			continue
		}
		swept++
	}

	if swept > 0 {
		s.log.Info("expired entries swept", zap.Int("count", swept))
	}
	return swept, nil
}
