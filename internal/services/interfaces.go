package services

import (
	"context"
	"time"

	"github.com/audit-ledger/backend/internal/models"
	"github.com/audit-ledger/backend/internal/repositories"
	"github.com/google/uuid"
)

// HotStore is the queryable 90-day tier. *repositories.AuditRepo is the
// production implementation; tests use in-memory fakes.
type HotStore interface {
	ChainHead(ctx context.Context, orgID string) (repositories.ChainTip, error)
	AlreadyApplied(ctx context.Context, messageID string) (bool, error)
	Insert(ctx context.Context, e *models.AuditLogEntry, messageID string) error
	GetByID(ctx context.Context, orgID string, logID uuid.UUID) (*models.AuditLogEntry, error)
	List(ctx context.Context, orgID string, f repositories.EntryFilter, pageSize int, after *repositories.Cursor) ([]models.AuditLogEntry, *repositories.Cursor, error)
	ListChain(ctx context.Context, orgID string) ([]models.AuditLogEntry, error)
	OrgIDs(ctx context.Context) ([]string, error)
	SelectExpired(ctx context.Context, now time.Time, limit int) ([]models.AuditLogEntry, error)
	Delete(ctx context.Context, logID uuid.UUID) error
}

// ColdStore is the immutable 7-year tier.
type ColdStore interface {
	Put(ctx context.Context, key string, body []byte) error
}

// StreamAppender appends payloads to a transport stream.
type StreamAppender interface {
	Add(ctx context.Context, stream string, payload any) (string, error)
}
