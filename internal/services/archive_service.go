package services

import (
	"context"
	"encoding/json"

	"github.com/audit-ledger/backend/internal/config"
	"github.com/audit-ledger/backend/internal/events"
	"github.com/audit-ledger/backend/internal/models"
	"github.com/audit-ledger/backend/internal/retention"
	"go.uber.org/zap"
)

// ArchiveService writes expiring entries to the cold tier. By the time
// a notification arrives the hot row is already gone, so a permanently
// failing archive write would silently lose the entry forever. Every
// failure here is therefore retryable and nothing is intentionally
// dropped; repeated failures escalate to alert logging instead.
type ArchiveService struct {
	cold ColdStore
	cfg  *config.Config
	log  *zap.Logger
}

func NewArchiveService(cold ColdStore, cfg *config.Config, log *zap.Logger) *ArchiveService {
	return &ArchiveService{cold: cold, cfg: cfg, log: log}
}

// OnExpiryNotification archives one expired entry. deliveries is the
// transport's delivery count for this notification, used only for
// alerting. A nil return acknowledges the notification; any error sends
// it back for redelivery.
func (s *ArchiveService) OnExpiryNotification(ctx context.Context, n events.ExpiryNotification, deliveries int64) error {
	// The change feed is shared infrastructure; skip record types that
	// are not ours.
	if n.Namespace != models.Namespace {
		s.log.Debug("ignoring expiry notification for foreign namespace",
			zap.String("namespace", n.Namespace),
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProcessTimeout)
	defer cancel()

	entry := n.Entry
	key := retention.ArchiveKey(entry.OrgID, entry.Timestamp, entry.LogID)

	body, err := json.Marshal(&entry)
	if err != nil {
		// Should be impossible for a reconstructed entry, but if it
		// happens we still must not drop: surface for redelivery and
		// alert.
		s.log.Error("expired entry cannot be serialized, retention at risk",
			zap.String("log_id", entry.LogID.String()),
			zap.Error(err),
		)
		return &TransientError{Op: "archive serialize", Err: err}
	}

	if err := s.cold.Put(ctx, key, body); err != nil {
		if deliveries >= int64(s.cfg.ArchiveAlertThreshold) {
			s.log.Error("archive write failing repeatedly, retention guarantee at risk",
				zap.String("key", key),
				zap.String("org_id", entry.OrgID),
				zap.Int64("deliveries", deliveries),
				zap.Error(err),
			)
		} else {
			s.log.Warn("archive write failed, will retry",
				zap.String("key", key),
				zap.Int64("deliveries", deliveries),
				zap.Error(err),
			)
		}
		return &TransientError{Op: "cold tier write", Err: err}
	}

	s.log.Info("entry archived",
		zap.String("key", key),
		zap.String("org_id", entry.OrgID),
	)
	return nil
}
