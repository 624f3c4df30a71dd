package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
)

type ReviewService struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *ReviewService {
	return &ReviewService{storage: storage}
}

// CreateReview lets the hiring party rate the contractor once the order is completed.
// One review per order.
func (s *ReviewService) CreateReview(ctx context.Context, orderID uuid.UUID, authorID uuid.UUID, rating int, comment string) (models.Review, error) {
	if rating < 1 || rating > 5 {
		return models.Review{}, apperrors.Validationf("rating must be between 1 and 5")
	}

	order, err := s.participantOrder(ctx, orderID, authorID)
	if err != nil {
		return models.Review{}, err
	}

	switch {
	case order.PartyOf(authorID) != models.PartyHiring:
		return models.Review{}, apperrors.ErrNotFoundOrUnauthorized
	case order.Status != models.WorkOrderCompleted:
		return models.Review{}, fmt.Errorf("%w: work order is %s", apperrors.ErrIllegalTransition, order.Status)
	}

	return s.storage.Review().CreateReview(ctx, models.Review{
		WorkOrderID: order.ID,
		AuthorID:    authorID,
		SubjectID:   order.ContractorID,
		Rating:      rating,
		Comment:     strings.TrimSpace(comment),
	})
}

// GetReview is visible to both parties of the order
func (s *ReviewService) GetReview(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID) (models.Review, error) {
	if _, err := s.participantOrder(ctx, orderID, actorID); err != nil {
		return models.Review{}, err
	}
	return s.storage.Review().GetReviewByWorkOrder(ctx, orderID)
}

func (s *ReviewService) participantOrder(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID) (models.WorkOrder, error) {
	order, err := s.storage.WorkOrder().GetWorkOrder(ctx, orderID, false)
	switch {
	case errors.Is(err, apperrors.ErrWorkOrderNotFound):
		return order, apperrors.ErrNotFoundOrUnauthorized
	case err != nil:
		return order, err
	case order.PartyOf(actorID) == models.PartyNone:
		return order, apperrors.ErrNotFoundOrUnauthorized
	default:
		return order, nil
	}
}
