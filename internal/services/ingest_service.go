package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/audit-ledger/backend/internal/config"
	"github.com/audit-ledger/backend/internal/events"
	"github.com/audit-ledger/backend/internal/models"
	"github.com/audit-ledger/backend/internal/repositories"
	"github.com/audit-ledger/backend/internal/signing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestService turns validated inbound events into signed hot-tier
// entries. It is the single mutation point of the chain: every
// successful write advances the organization's chain head.
type IngestService struct {
	repo      HotStore
	secrets   *signing.SecretCache
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewIngestService(
	repo HotStore,
	secrets *signing.SecretCache,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *IngestService {
	return &IngestService{
		repo:      repo,
		secrets:   secrets,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// ProcessBatch handles one transport batch. Messages that fail schema
// validation are logged and dropped: malformed input is permanently
// invalid and retrying it would only loop. Messages that hit an
// infrastructure failure come back in BatchResult so the transport
// redelivers them. One bad message never fails the batch.
func (s *IngestService) ProcessBatch(ctx context.Context, msgs []events.RawMessage) events.BatchResult {
	var result events.BatchResult
	for _, msg := range msgs {
		if err := s.processMessage(ctx, msg); err != nil {
			if !IsRetryable(err) {
				s.log.Warn("dropping invalid audit event",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
				continue
			}
			s.log.Error("audit event processing failed",
				zap.String("message_id", msg.ID),
				zap.Int64("deliveries", msg.Deliveries),
				zap.Error(err),
			)
			result.FailedMessageIDs = append(result.FailedMessageIDs, msg.ID)
		}
	}
	return result
}

func (s *IngestService) processMessage(ctx context.Context, msg events.RawMessage) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProcessTimeout)
	defer cancel()

	var event models.AuditEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return &ValidationError{Reason: "malformed event payload", Err: err}
	}
	if err := event.Validate(); err != nil {
		return &ValidationError{Reason: "schema violation", Err: err}
	}

	// Redelivery of an already-applied message must not sign again:
	// a second signature for the same event would fork the chain.
	applied, err := s.repo.AlreadyApplied(ctx, msg.ID)
	if err != nil {
		return &TransientError{Op: "dedup check", Err: err}
	}
	if applied {
		s.log.Debug("skipping already-applied message", zap.String("message_id", msg.ID))
		return nil
	}

	secret, err := s.secrets.Get(ctx)
	if err != nil {
		return err
	}

	entry, err := s.signAndInsert(ctx, &event, msg.ID, secret)
	if err != nil {
		return err
	}
	if entry != nil {
		s.publishTail(ctx, entry)
	}
	return nil
}

// signAndInsert runs the optimistic chain-head protocol: read the head,
// sign against it, commit conditioned on the head being unchanged. A
// lost race means another writer advanced the chain first; re-read and
// re-sign against the new head, bounded attempts.
//
// Chain order is (timestamp, logId) ascending, so the prev-links must
// agree with that order. Log ids are time-ordered (UUIDv7); when an
// event carries the same timestamp as the current head, the new id must
// sort after the head's id or verification would see the links
// inverted. A tie that sorts before the head is treated as contention
// and retried with a fresh, later id.
func (s *IngestService) signAndInsert(ctx context.Context, event *models.AuditEvent, messageID string, secret []byte) (*models.AuditLogEntry, error) {
	for attempt := 0; attempt < s.cfg.ChainMaxRetries; attempt++ {
		head, err := s.repo.ChainHead(ctx, event.OrgID)
		if err != nil {
			return nil, &TransientError{Op: "chain head read", Err: err}
		}

		logID, err := uuid.NewV7()
		if err != nil {
			return nil, &TransientError{Op: "log id generation", Err: err}
		}
		if event.Timestamp.Equal(head.Time) && logID.String() <= head.LogID.String() {
			continue
		}

		writtenAt := time.Now().UTC()
		entry := &models.AuditLogEntry{
			LogID:         logID,
			OrgID:         event.OrgID,
			ActorID:       event.ActorID,
			Action:        event.Action,
			Resource:      event.Resource,
			ResourceID:    event.ResourceID,
			Timestamp:     event.Timestamp.UTC(),
			Changes:       event.Changes,
			PrevSignature: head.Signature,
			ExpiresAt:     writtenAt.Add(s.cfg.HotTTL),
		}
		entry.Signature = signing.Sign(entry, head.Signature, secret)

		err = s.repo.Insert(ctx, entry, messageID)
		switch {
		case err == nil:
			return entry, nil
		case errors.Is(err, repositories.ErrChainConflict):
			s.log.Debug("chain head contention, retrying",
				zap.String("org_id", event.OrgID),
				zap.Int("attempt", attempt+1),
			)
			continue
		case errors.Is(err, repositories.ErrDuplicateMessage):
			// Lost a dedup race with a concurrent redelivery.
			return nil, nil
		default:
			return nil, &TransientError{Op: "hot tier insert", Err: err}
		}
	}
	return nil, &TransientError{Op: "chain head contention", Err: ErrChainContention}
}

func (s *IngestService) publishTail(ctx context.Context, entry *models.AuditLogEntry) {
	err := s.publisher.Publish(ctx, events.TailChannel, events.Event{
		Type:  events.EventEntryRecorded,
		OrgID: entry.OrgID,
		Payload: map[string]any{
			"log_id":      entry.LogID.String(),
			"action":      entry.Action,
			"resource":    entry.Resource,
			"resource_id": entry.ResourceID,
			"actor_id":    entry.ActorID,
			"timestamp":   entry.Timestamp,
		},
	})
	if err != nil {
		// Live tail is best effort, the entry is already durable.
		s.log.Warn("tail publish failed", zap.Error(err))
	}
}
