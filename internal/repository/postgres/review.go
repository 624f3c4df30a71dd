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
)

type ReviewRepo struct {
	DB DBTX
}

const createReview = `-- name: CreateReview
INSERT INTO reviews (id, work_order_id, author_id, subject_id, rating, comment)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, work_order_id, author_id, subject_id, rating, comment, created_at
`

func (r *ReviewRepo) CreateReview(ctx context.Context, rv models.Review) (models.Review, error) {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createReview, rv.ID, rv.WorkOrderID, rv.AuthorID, rv.SubjectID, rv.Rating, rv.Comment)
	review, err := pgx.CollectOneRow(rows, rowToReview)

	switch {
	case err == nil:
		return review, nil
	case pgErrorCode(err) == pgerrcode.UniqueViolation:
		return review, fmt.Errorf("repo error: %w", apperrors.ErrReviewAlreadyExists)
	case pgErrorCode(err) == pgerrcode.CheckViolation:
		return review, apperrors.Validationf("rating must be 1..5")
	case pgErrorCode(err) == pgerrcode.ForeignKeyViolation:
		return review, fmt.Errorf("repo error: %w", apperrors.ErrWorkOrderNotFound)
	default:
		return review, dbError(err)
	}
}

const getReviewByWorkOrder = `-- name: GetReviewByWorkOrder
SELECT id, work_order_id, author_id, subject_id, rating, comment, created_at
FROM reviews
WHERE work_order_id = $1
`

func (r *ReviewRepo) GetReviewByWorkOrder(ctx context.Context, workOrderID uuid.UUID) (models.Review, error) {
	rows, _ := r.DB.Query(ctx, getReviewByWorkOrder, workOrderID)
	review, err := pgx.CollectOneRow(rows, rowToReview)

	switch {
	case err == nil:
		return review, nil
	case errors.Is(err, pgx.ErrNoRows):
		return review, fmt.Errorf("repo error: %w", apperrors.ErrReviewNotFound)
	default:
		return review, dbError(err)
	}
}

func rowToReview(row pgx.CollectableRow) (models.Review, error) {
	var r models.Review
	err := row.Scan(&r.ID, &r.WorkOrderID, &r.AuthorID, &r.SubjectID, &r.Rating, &r.Comment, &r.CreatedAt)
	return r, err
}
