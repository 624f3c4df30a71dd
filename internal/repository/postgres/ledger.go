package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/models"
)

type LedgerRepo struct {
	DB DBTX
}

const ledgerColumns = `id, kind, amount, status, method, payer_id, receiver_id, work_order_id, external_ref, failure_reason, created_at, resolved_at, resolved_by`

const createEntry = `-- name: CreateLedgerEntry
INSERT INTO ledger_entries (id, kind, amount, status, method, payer_id, receiver_id, work_order_id, external_ref, failure_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + ledgerColumns

func (r *LedgerRepo) CreateEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createEntry,
		e.ID, e.Kind, e.Amount, e.Status, e.Method, e.PayerID, e.ReceiverID, e.WorkOrderID, e.ExternalRef, e.FailureReason,
	)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	switch {
	case err == nil:
		return entry, nil
	case pgErrorCode(err) == pgerrcode.UniqueViolation && pgConstraint(err) == "ledger_entries_payout_once_idx":
		return entry, fmt.Errorf("repo error: work order paid out already: %w", apperrors.ErrConflict)
	case pgErrorCode(err) == pgerrcode.UniqueViolation:
		return entry, fmt.Errorf("repo error: %w", apperrors.ErrPaymentAlreadyProcessed)
	case pgErrorCode(err) == pgerrcode.ForeignKeyViolation:
		return entry, fmt.Errorf("repo error: %w", apperrors.ErrNotFoundOrUnauthorized)
	default:
		return entry, dbError(err)
	}
}

const getEntry = `-- name: GetLedgerEntry
SELECT ` + ledgerColumns + `
FROM ledger_entries
WHERE id = $1
`

func (r *LedgerRepo) GetEntry(ctx context.Context, id uuid.UUID) (models.LedgerEntry, error) {
	rows, _ := r.DB.Query(ctx, getEntry, id)
	return collectEntry(rows)
}

const getEntryByExternalRef = `-- name: GetLedgerEntryByExternalRef
SELECT ` + ledgerColumns + `
FROM ledger_entries
WHERE external_ref = $1
`

func (r *LedgerRepo) GetEntryByExternalRef(ctx context.Context, externalRef string) (models.LedgerEntry, error) {
	rows, _ := r.DB.Query(ctx, getEntryByExternalRef, externalRef)
	return collectEntry(rows)
}

// Only the first resolver wins: the row must still be pending
const resolveWithdrawal = `-- name: ResolveWithdrawal
UPDATE ledger_entries
SET status = $2, resolved_at = $3, resolved_by = $4
WHERE id = $1 AND kind = 'WITHDRAWAL' AND status = 'PENDING'
RETURNING ` + ledgerColumns

func (r *LedgerRepo) ResolveWithdrawal(ctx context.Context, id uuid.UUID, status models.LedgerStatus, resolvedBy uuid.UUID) (models.LedgerEntry, error) {
	rows, _ := r.DB.Query(ctx, resolveWithdrawal, id, status, time.Now(), resolvedBy)
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	switch {
	case err == nil:
		return entry, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, gerr := r.GetEntry(ctx, id)
		switch {
		case errors.Is(gerr, apperrors.ErrPaymentNotFound):
			return entry, fmt.Errorf("repo error: %w", apperrors.ErrWithdrawalNotFound)
		case gerr != nil:
			return entry, gerr
		case existing.Kind != models.KindWithdrawal:
			return entry, fmt.Errorf("repo error: %w", apperrors.ErrWithdrawalNotFound)
		default:
			return existing, fmt.Errorf("repo error: withdrawal is %s: %w", existing.Status, apperrors.ErrAlreadyProcessed)
		}
	default:
		return entry, dbError(err)
	}
}

const listPendingWithdrawals = `-- name: ListPendingWithdrawals
SELECT ` + ledgerColumns + `
FROM ledger_entries
WHERE kind = 'WITHDRAWAL' AND method = 'BANK_TRANSFER' AND receiver_id IS NULL AND status = 'PENDING'
ORDER BY created_at ASC, id ASC
`

func (r *LedgerRepo) ListPendingWithdrawals(ctx context.Context) ([]models.LedgerEntry, error) {
	rows, _ := r.DB.Query(ctx, listPendingWithdrawals)
	entries, err := pgx.CollectRows(rows, rowToEntry)
	if err != nil {
		return nil, dbError(err)
	}
	return entries, nil
}

const listUserEntries = `-- name: ListUserLedgerEntries
SELECT ` + ledgerColumns + `
FROM ledger_entries
WHERE (payer_id = $1 OR receiver_id = $1)
  AND (cardinality($2::text[]) = 0 OR kind = ANY($2::text[]))
ORDER BY created_at DESC, id DESC
`

func (r *LedgerRepo) ListUserEntries(ctx context.Context, userID uuid.UUID, kinds ...models.LedgerKind) ([]models.LedgerEntry, error) {
	k := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		k = append(k, string(kind))
	}

	rows, _ := r.DB.Query(ctx, listUserEntries, userID, k)
	entries, err := pgx.CollectRows(rows, rowToEntry)
	if err != nil {
		return nil, dbError(err)
	}
	return entries, nil
}

func collectEntry(rows pgx.Rows) (models.LedgerEntry, error) {
	entry, err := pgx.CollectOneRow(rows, rowToEntry)

	switch {
	case err == nil:
		return entry, nil
	case errors.Is(err, pgx.ErrNoRows):
		return entry, fmt.Errorf("repo error: %w", apperrors.ErrPaymentNotFound)
	default:
		return entry, dbError(err)
	}
}

func rowToEntry(row pgx.CollectableRow) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(
		&e.ID,
		&e.Kind,
		&e.Amount,
		&e.Status,
		&e.Method,
		&e.PayerID,
		&e.ReceiverID,
		&e.WorkOrderID,
		&e.ExternalRef,
		&e.FailureReason,
		&e.CreatedAt,
		&e.ResolvedAt,
		&e.ResolvedBy,
	)
	return e, err
}
