package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/audit-ledger/backend/internal/models"
	"github.com/audit-ledger/backend/internal/retention"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrChainConflict: another writer advanced the org's chain head
	// between the head read and the conditional write.
	ErrChainConflict = errors.New("chain head changed concurrently")

	// ErrDuplicateMessage: the transport redelivered a message whose
	// entry is already persisted.
	ErrDuplicateMessage = errors.New("message already applied")

	// ErrNotFound: no entry with that id exists in the caller's org.
	ErrNotFound = errors.New("audit entry not found")
)

const entryColumns = `log_id, org_id, actor_id, action, resource, resource_id, event_time, changes, signature, prev_signature, expires_at`

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// ChainTip is the current head of an organization's chain: the head
// signature plus the head entry's (event_time, log_id) position, which
// writers need to keep link order and chain sort order in agreement.
type ChainTip struct {
	Signature string
	Time      time.Time
	LogID     uuid.UUID
}

// ChainHead returns the current chain tip for an organization, or a tip
// at the genesis signature when the org has no entries yet.
func (r *AuditRepo) ChainHead(ctx context.Context, orgID string) (ChainTip, error) {
	var tip ChainTip
	err := r.pool.QueryRow(ctx, `
		SELECT head, head_time, head_log_id FROM audit_chain_heads WHERE org_id = $1
	`, orgID).Scan(&tip.Signature, &tip.Time, &tip.LogID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChainTip{Signature: retention.GenesisSignature}, nil
	}
	if err != nil {
		return ChainTip{}, err
	}
	return tip, nil
}

// AlreadyApplied reports whether an entry for this transport message id
// is already persisted. Checked before signing so redelivered messages
// never advance the chain twice.
func (r *AuditRepo) AlreadyApplied(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM audit_log WHERE message_id = $1)`, messageID).Scan(&exists)
	return exists, err
}

// Insert persists a signed entry and advances the organization's chain
// head in one transaction. The head advance is conditional on the head
// still being the entry's prev_signature; a lost race returns
// ErrChainConflict and the caller must re-read the head and re-sign.
func (r *AuditRepo) Insert(ctx context.Context, e *models.AuditLogEntry, messageID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if e.PrevSignature == retention.GenesisSignature {
		ct, err := tx.Exec(ctx, `
			INSERT INTO audit_chain_heads (org_id, head, head_time, head_log_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (org_id) DO UPDATE
				SET head = $2, head_time = $3, head_log_id = $4, updated_at = now()
				WHERE audit_chain_heads.head = $5
		`, e.OrgID, e.Signature, e.Timestamp, e.LogID, retention.GenesisSignature)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrChainConflict
		}
	} else {
		ct, err := tx.Exec(ctx, `
			UPDATE audit_chain_heads
			SET head = $1, head_time = $2, head_log_id = $3, updated_at = now()
			WHERE org_id = $4 AND head = $5
		`, e.Signature, e.Timestamp, e.LogID, e.OrgID, e.PrevSignature)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrChainConflict
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_log (`+entryColumns+`, message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.LogID, e.OrgID, e.ActorID, e.Action, e.Resource, e.ResourceID, e.Timestamp,
		e.Changes, e.Signature, e.PrevSignature, e.ExpiresAt, messageID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "audit_log_message_id_key" {
			return ErrDuplicateMessage
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *AuditRepo) GetByID(ctx context.Context, orgID string, logID uuid.UUID) (*models.AuditLogEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM audit_log WHERE org_id = $1 AND log_id = $2
	`, orgID, logID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// EntryFilter narrows a List query. All set fields are conjunctive.
type EntryFilter struct {
	Actor    *string
	Action   *string
	Resource *string
	From     *time.Time
	To       *time.Time
}

// List pages through one organization's entries in chain order
// (event_time, log_id ascending) with keyset pagination. The returned
// cursor resumes exactly after the last item; nil means no more pages.
func (r *AuditRepo) List(ctx context.Context, orgID string, f EntryFilter, pageSize int, after *Cursor) ([]models.AuditLogEntry, *Cursor, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}

	query := `SELECT ` + entryColumns + ` FROM audit_log WHERE org_id = $1`
	args := []any{orgID}
	argIdx := 2

	if f.Actor != nil {
		query += fmt.Sprintf(" AND actor_id = $%d", argIdx)
		args = append(args, *f.Actor)
		argIdx++
	}
	if f.Action != nil {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, *f.Action)
		argIdx++
	}
	if f.Resource != nil {
		query += fmt.Sprintf(" AND resource = $%d", argIdx)
		args = append(args, *f.Resource)
		argIdx++
	}
	if f.From != nil {
		query += fmt.Sprintf(" AND event_time >= $%d", argIdx)
		args = append(args, *f.From)
		argIdx++
	}
	if f.To != nil {
		query += fmt.Sprintf(" AND event_time < $%d", argIdx)
		args = append(args, *f.To)
		argIdx++
	}
	if after != nil {
		query += fmt.Sprintf(" AND (event_time, log_id) > ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, after.Timestamp, after.LogID)
		argIdx += 2
	}

	query += fmt.Sprintf(" ORDER BY event_time, log_id LIMIT $%d", argIdx)
	args = append(args, pageSize+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *Cursor
	if len(entries) > pageSize {
		entries = entries[:pageSize]
		last := entries[len(entries)-1]
		next = &Cursor{Timestamp: last.Timestamp, LogID: last.LogID}
	}
	return entries, next, nil
}

// ListChain returns every entry of one organization in chain order, for
// verification.
func (r *AuditRepo) ListChain(ctx context.Context, orgID string) ([]models.AuditLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM audit_log WHERE org_id = $1 ORDER BY event_time, log_id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// OrgIDs lists every organization with hot-tier entries.
func (r *AuditRepo) OrgIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT org_id FROM audit_log`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// SelectExpired returns up to limit entries whose hot-tier TTL has
// passed, oldest first.
func (r *AuditRepo) SelectExpired(ctx context.Context, now time.Time, limit int) ([]models.AuditLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+` FROM audit_log
		WHERE expires_at <= $1 ORDER BY expires_at LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Delete removes an expired entry from the hot tier. Only the sweeper
// calls this, after the expiry notification is durably published.
func (r *AuditRepo) Delete(ctx context.Context, logID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM audit_log WHERE log_id = $1`, logID)
	return err
}

func scanEntry(row pgx.Row) (*models.AuditLogEntry, error) {
	var e models.AuditLogEntry
	err := row.Scan(&e.LogID, &e.OrgID, &e.ActorID, &e.Action, &e.Resource, &e.ResourceID,
		&e.Timestamp, &e.Changes, &e.Signature, &e.PrevSignature, &e.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
