package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Namespace tags every hot-tier row and expiry notification so consumers
// of the shared change feed can tell audit rows apart from unrelated
// record types.
const Namespace = "audit_log"

// Audit actions
const (
	ActionProjectCreated    = "PROJECT_CREATED"
	ActionProjectUpdated    = "PROJECT_UPDATED"
	ActionProjectDeleted    = "PROJECT_DELETED"
	ActionDocumentCreated   = "DOCUMENT_CREATED"
	ActionDocumentUpdated   = "DOCUMENT_UPDATED"
	ActionDocumentDeleted   = "DOCUMENT_DELETED"
	ActionPermissionGranted = "PERMISSION_GRANTED"
	ActionPermissionRevoked = "PERMISSION_REVOKED"
	ActionMemberAdded       = "MEMBER_ADDED"
	ActionMemberRemoved     = "MEMBER_REMOVED"
)

// Resource kinds
const (
	ResourceProject    = "project"
	ResourceDocument   = "document"
	ResourcePermission = "permission"
	ResourceMember     = "member"
)

var validActions = map[string]bool{
	ActionProjectCreated:    true,
	ActionProjectUpdated:    true,
	ActionProjectDeleted:    true,
	ActionDocumentCreated:   true,
	ActionDocumentUpdated:   true,
	ActionDocumentDeleted:   true,
	ActionPermissionGranted: true,
	ActionPermissionRevoked: true,
	ActionMemberAdded:       true,
	ActionMemberRemoved:     true,
}

var validResources = map[string]bool{
	ResourceProject:    true,
	ResourceDocument:   true,
	ResourcePermission: true,
	ResourceMember:     true,
}

func IsValidAction(action string) bool { return validActions[action] }

func IsValidResource(kind string) bool { return validResources[kind] }

// ChangeSet is the optional before/after snapshot attached to mutations.
type ChangeSet struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// AuditLogEntry is the unit of record. Entries are immutable once signed:
// there is no update path, corrections are written as new entries.
type AuditLogEntry struct {
	LogID         uuid.UUID  `json:"log_id"`
	OrgID         string     `json:"org_id"`
	ActorID       string     `json:"actor_id"`
	Action        string     `json:"action"`
	Resource      string     `json:"resource"`
	ResourceID    string     `json:"resource_id"`
	Timestamp     time.Time  `json:"timestamp"` // event time, not write time
	Changes       *ChangeSet `json:"changes,omitempty"`
	Signature     string     `json:"signature"`
	PrevSignature string     `json:"prev_signature"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// AuditEvent is the inbound message emitted by the mutation endpoints.
type AuditEvent struct {
	OrgID      string     `json:"org_id"`
	ActorID    string     `json:"actor_id"`
	Action     string     `json:"action"`
	Resource   string     `json:"resource"`
	ResourceID string     `json:"resource_id"`
	Timestamp  time.Time  `json:"timestamp"`
	Changes    *ChangeSet `json:"changes,omitempty"`
}

// Validate checks the event against the audit-event schema. A non-nil
// error means the message is permanently invalid and must be dropped,
// never retried.
func (e *AuditEvent) Validate() error {
	if e.OrgID == "" {
		return fmt.Errorf("org_id is required")
	}
	if e.ActorID == "" {
		return fmt.Errorf("actor_id is required")
	}
	if !IsValidAction(e.Action) {
		return fmt.Errorf("unknown action %q", e.Action)
	}
	if !IsValidResource(e.Resource) {
		return fmt.Errorf("unknown resource %q", e.Resource)
	}
	if e.ResourceID == "" {
		return fmt.Errorf("resource_id is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
