package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
)

type WorkOrderRepo struct {
	DB DBTX
}

const workOrderColumns = `id, hiring_party_id, contractor_id, title, description, price, duration_days, status, revision_count, created_at, completed_at`

const createWorkOrder = `-- name: CreateWorkOrder
INSERT INTO work_orders (id, hiring_party_id, contractor_id, title, description, price, duration_days, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + workOrderColumns

func (r *WorkOrderRepo) CreateWorkOrder(ctx context.Context, o models.WorkOrder) (models.WorkOrder, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = models.WorkOrderOfferPending
	}

	rows, _ := r.DB.Query(ctx, createWorkOrder,
		o.ID, o.HiringPartyID, o.ContractorID, o.Title, o.Description, o.Price, o.DurationDays, o.Status,
	)
	order, err := pgx.CollectOneRow(rows, rowToWorkOrder)

	switch {
	case err == nil:
		return order, nil
	case pgErrorCode(err) == pgerrcode.ForeignKeyViolation:
		return order, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
	case pgErrorCode(err) == pgerrcode.CheckViolation:
		return order, apperrors.Validationf("work order values out of range")
	default:
		return order, dbError(err)
	}
}

const getWorkOrder = `-- name: GetWorkOrder
SELECT ` + workOrderColumns + `
FROM work_orders
WHERE id = $1
`

func (r *WorkOrderRepo) GetWorkOrder(ctx context.Context, id uuid.UUID, lock bool) (models.WorkOrder, error) {
	query := getWorkOrder
	if lock {
		query += "FOR UPDATE"
	}

	rows, _ := r.DB.Query(ctx, query, id)
	order, err := pgx.CollectOneRow(rows, rowToWorkOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, fmt.Errorf("repo error: %w", apperrors.ErrWorkOrderNotFound)
	default:
		return order, dbError(err)
	}
}

// Conditional on the expected current status
const updateWorkOrderStatus = `-- name: UpdateWorkOrderStatus
UPDATE work_orders
SET status = $3,
    revision_count = revision_count + $4,
    completed_at = $5
WHERE id = $1 AND status = $2
RETURNING ` + workOrderColumns

func (r *WorkOrderRepo) UpdateStatus(ctx context.Context, upd repository.UpdateWorkOrderStatus) (models.WorkOrder, error) {
	increment := 0
	if upd.IncrementRevision {
		increment = 1
	}

	rows, _ := r.DB.Query(ctx, updateWorkOrderStatus, upd.ID, upd.From, upd.To, increment, upd.CompletedAt)
	order, err := pgx.CollectOneRow(rows, rowToWorkOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		if _, gerr := r.GetWorkOrder(ctx, upd.ID, false); gerr != nil {
			return order, gerr
		}
		return order, fmt.Errorf("repo error: work order is not %s anymore: %w", upd.From, apperrors.ErrConflict)
	default:
		return order, dbError(err)
	}
}

const listWorkOrders = `-- name: ListWorkOrders
SELECT ` + workOrderColumns + `
FROM work_orders
WHERE hiring_party_id = $1 OR contractor_id = $1
ORDER BY created_at DESC
`

func (r *WorkOrderRepo) ListWorkOrders(ctx context.Context, userID uuid.UUID) ([]models.WorkOrder, error) {
	rows, _ := r.DB.Query(ctx, listWorkOrders, userID)
	orders, err := pgx.CollectRows(rows, rowToWorkOrder)
	if err != nil {
		return nil, dbError(err)
	}
	return orders, nil
}

func rowToWorkOrder(row pgx.CollectableRow) (models.WorkOrder, error) {
	var o models.WorkOrder
	err := row.Scan(
		&o.ID,
		&o.HiringPartyID,
		&o.ContractorID,
		&o.Title,
		&o.Description,
		&o.Price,
		&o.DurationDays,
		&o.Status,
		&o.RevisionCount,
		&o.CreatedAt,
		&o.CompletedAt,
	)
	return o, err
}
