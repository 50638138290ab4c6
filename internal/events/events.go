package events

import (
	"context"

	"github.com/audit-ledger/backend/internal/models"
)

// Event types on the live-tail channel
const (
	EventEntryRecorded = "audit_entry_recorded"
	EventChainBroken   = "audit_chain_broken"
)

// TailChannel carries live-tail events to API instances.
const TailChannel = "audit:tail"

// Event is the pub/sub envelope for live-tail fan-out.
type Event struct {
	Type    string         `json:"type"`
	OrgID   string         `json:"org_id"`
	Payload map[string]any `json:"payload"`
}

// ExpiryNotification is the change-feed record emitted once per expiring
// hot-tier item. It carries the full last-known state of the item: by
// the time a consumer sees it, the hot row is gone. The feed is shared
// infrastructure, so consumers must filter on Namespace.
type ExpiryNotification struct {
	Namespace string               `json:"namespace"`
	Entry     models.AuditLogEntry `json:"entry"`
}

// RawMessage is one transport delivery handed to a consumer.
type RawMessage struct {
	ID         string
	Body       []byte
	Deliveries int64
}

// BatchResult names the messages that failed on infrastructure errors
// and must be redelivered. Validation failures are not in here: those
// are dropped.
type BatchResult struct {
	FailedMessageIDs []string
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
