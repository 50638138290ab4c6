package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/audit-ledger/backend/internal/models"
	"github.com/audit-ledger/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueryFilter is the caller-facing filter set. All set fields are
// conjunctive.
type QueryFilter struct {
	Actor    *string
	Action   *string
	Resource *string
	From     *time.Time
	To       *time.Time
}

// QueryPage is one page of results plus the token for the next page.
type QueryPage struct {
	Items     []models.AuditLogEntry
	NextToken string
}

// QueryService serves read access to the hot tier. It never touches the
// cold tier and refuses to run without an organization scope:
// authorization itself belongs to the calling collaborator, but scoping
// is enforced here regardless.
type QueryService struct {
	repo HotStore
	log  *zap.Logger
}

func NewQueryService(repo HotStore, log *zap.Logger) *QueryService {
	return &QueryService{repo: repo, log: log}
}

func (s *QueryService) Query(ctx context.Context, orgID string, f QueryFilter, pageSize int, pageToken string) (*QueryPage, error) {
	if orgID == "" {
		return nil, ErrUnscopedQuery
	}
	if err := validateFilter(f); err != nil {
		return nil, err
	}

	cursor, err := repositories.DecodeCursor(pageToken)
	if err != nil {
		return nil, &ValidationError{Reason: "invalid page token", Err: err}
	}

	repoFilter := repositories.EntryFilter{
		Actor:    f.Actor,
		Action:   f.Action,
		Resource: f.Resource,
		From:     f.From,
		To:       f.To,
	}
	items, next, err := s.repo.List(ctx, orgID, repoFilter, pageSize, cursor)
	if err != nil {
		return nil, &TransientError{Op: "hot tier query", Err: err}
	}

	page := &QueryPage{Items: items}
	if next != nil {
		page.NextToken = next.Encode()
	}
	return page, nil
}

func (s *QueryService) GetEntry(ctx context.Context, orgID string, logID uuid.UUID) (*models.AuditLogEntry, error) {
	if orgID == "" {
		return nil, ErrUnscopedQuery
	}
	entry, err := s.repo.GetByID(ctx, orgID, logID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, &TransientError{Op: "hot tier read", Err: err}
	}
	return entry, nil
}

func validateFilter(f QueryFilter) error {
	if f.Action != nil && !models.IsValidAction(*f.Action) {
		return &ValidationError{Reason: fmt.Sprintf("unknown action %q", *f.Action)}
	}
	if f.Resource != nil && !models.IsValidResource(*f.Resource) {
		return &ValidationError{Reason: fmt.Sprintf("unknown resource %q", *f.Resource)}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return &ValidationError{Reason: "time range start is after end"}
	}
	return nil
}
