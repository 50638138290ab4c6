package dto

import "github.com/audit-ledger/backend/internal/models"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type AuditLogPage struct {
	Items     []models.AuditLogEntry `json:"items"`
	Count     int                    `json:"count"`
	NextToken string                 `json:"next_token,omitempty"`
}

type VerifyResponse struct {
	OrgID    string `json:"org_id"`
	Entries  int    `json:"entries"`
	Valid    bool   `json:"valid"`
	BrokenAt *int   `json:"broken_at,omitempty"`
}
