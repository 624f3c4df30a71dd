// Package workorder runs the lifecycle of hired work and moves the escrowed money with it.
package workorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
	"github.com/nkiryanov/escrow/internal/service/notify"
	"github.com/nkiryanov/escrow/internal/service/wallet"
)

type OfferParams struct {
	HiringPartyID uuid.UUID
	Title         string
	Description   string
	Price         decimal.Decimal
	DurationDays  int
}

type Service struct {
	storage  repository.Storage
	wallet   wallet.Accessor
	notifier notify.Notifier
	logger   logger.Logger
}

func NewService(storage repository.Storage, notifier notify.Notifier, l logger.Logger) *Service {
	return &Service{
		storage:  storage,
		wallet:   wallet.New(),
		notifier: notifier,
		logger:   l,
	}
}

func EscrowRef(orderID uuid.UUID) string { return "escrow:" + orderID.String() }
func PayoutRef(orderID uuid.UUID) string { return "payout:" + orderID.String() }

// CreateOffer is made by the contractor; the hiring party accepts it by moving it to IN_PROGRESS
func (s *Service) CreateOffer(ctx context.Context, contractorID uuid.UUID, p OfferParams) (models.WorkOrder, error) {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return models.WorkOrder{}, apperrors.Validationf("title required")
	case p.DurationDays <= 0:
		return models.WorkOrder{}, apperrors.Validationf("duration must be positive")
	case p.HiringPartyID == contractorID:
		return models.WorkOrder{}, apperrors.Validationf("cannot hire yourself")
	}
	if err := wallet.ValidateAmount(p.Price); err != nil {
		return models.WorkOrder{}, err
	}

	_, err := s.storage.User().GetUserByID(ctx, p.HiringPartyID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.WorkOrder{}, apperrors.Validationf("unknown hiring party")
	case err != nil:
		return models.WorkOrder{}, err
	}

	order, err := s.storage.WorkOrder().CreateWorkOrder(ctx, models.WorkOrder{
		HiringPartyID: p.HiringPartyID,
		ContractorID:  contractorID,
		Title:         p.Title,
		Description:   p.Description,
		Price:         p.Price,
		DurationDays:  p.DurationDays,
		Status:        models.WorkOrderOfferPending,
	})
	if err != nil {
		return order, fmt.Errorf("offer not created: %w", err)
	}

	s.notify(ctx, notify.Notification{
		UserID:      order.HiringPartyID,
		Kind:        notify.KindOfferReceived,
		Message:     fmt.Sprintf("new offer %q for %s", order.Title, order.Price.StringFixed(2)),
		WorkOrderID: notify.Ref(order.ID),
	})

	return order, nil
}

// GetWorkOrder shows the order to its participants only
func (s *Service) GetWorkOrder(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID) (models.WorkOrder, error) {
	order, err := s.storage.WorkOrder().GetWorkOrder(ctx, orderID, false)
	switch {
	case errors.Is(err, apperrors.ErrWorkOrderNotFound):
		return models.WorkOrder{}, apperrors.ErrNotFoundOrUnauthorized
	case err != nil:
		return models.WorkOrder{}, err
	case order.PartyOf(actorID) == models.PartyNone:
		return models.WorkOrder{}, apperrors.ErrNotFoundOrUnauthorized
	default:
		return order, nil
	}
}

func (s *Service) ListWorkOrders(ctx context.Context, actorID uuid.UUID) ([]models.WorkOrder, error) {
	return s.storage.WorkOrder().ListWorkOrders(ctx, actorID)
}

// Transition moves the order to target if the table allows it for the actor.
//
// Accepting an offer holds the price from the hiring party's wallet,
// completing releases it to the contractor. Both happen in the same transaction as the status change.
// The row is locked and the update is conditional on the observed status,
// so of two concurrent completions only one pays out.
func (s *Service) Transition(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID, target models.WorkOrderStatus) (models.WorkOrder, error) {
	if _, ok := models.ParseWorkOrderStatus(string(target)); !ok {
		return models.WorkOrder{}, apperrors.Validationf("unknown status %q", target)
	}

	var (
		from  models.WorkOrderStatus
		order models.WorkOrder
	)

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		current, err := tx.WorkOrder().GetWorkOrder(ctx, orderID, true)
		switch {
		case errors.Is(err, apperrors.ErrWorkOrderNotFound):
			return apperrors.ErrNotFoundOrUnauthorized
		case err != nil:
			return err
		}

		party := current.PartyOf(actorID)
		if party == models.PartyNone {
			return apperrors.ErrNotFoundOrUnauthorized
		}
		if err := Allowed(current.Status, target, party); err != nil {
			return err
		}

		upd := repository.UpdateWorkOrderStatus{ID: current.ID, From: current.Status, To: target}
		switch target {
		case models.WorkOrderRevisionRequested:
			upd.IncrementRevision = true
		case models.WorkOrderCompleted:
			now := time.Now()
			upd.CompletedAt = &now
		}

		order, err = tx.WorkOrder().UpdateStatus(ctx, upd)
		if err != nil {
			return err
		}
		from = current.Status

		switch {
		case from == models.WorkOrderOfferPending && target == models.WorkOrderInProgress:
			return s.holdEscrow(ctx, tx, order)
		case target == models.WorkOrderCompleted:
			return s.payout(ctx, tx, order)
		default:
			return nil
		}
	})
	if err != nil {
		return models.WorkOrder{}, fmt.Errorf("transition to %s failed: %w", target, err)
	}

	s.logger.Info("work order moved", "order_id", order.ID, "from", from, "to", order.Status, "actor_id", actorID)
	s.notify(ctx, notify.Notification{
		UserID:      order.Counterpart(actorID),
		Kind:        notify.KindWorkOrderChanged,
		Message:     fmt.Sprintf("work order %q is now %s", order.Title, order.Status),
		WorkOrderID: notify.Ref(order.ID),
	})

	return order, nil
}

func (s *Service) holdEscrow(ctx context.Context, tx repository.Storage, order models.WorkOrder) error {
	if _, err := s.wallet.DebitIfSufficient(ctx, tx.Account(), order.HiringPartyID, order.Price); err != nil {
		return err
	}

	flow := models.EscrowHold{Payer: order.HiringPartyID, WorkOrder: order.ID}
	_, err := tx.Ledger().CreateEntry(ctx, models.NewLedgerEntry(flow, order.Price, models.MethodWallet, models.LedgerSuccess, EscrowRef(order.ID)))
	return err
}

func (s *Service) payout(ctx context.Context, tx repository.Storage, order models.WorkOrder) error {
	if _, err := s.wallet.Credit(ctx, tx.Account(), order.ContractorID, order.Price); err != nil {
		return err
	}

	flow := models.Payout{Payer: order.HiringPartyID, Receiver: order.ContractorID, WorkOrder: order.ID}
	_, err := tx.Ledger().CreateEntry(ctx, models.NewLedgerEntry(flow, order.Price, models.MethodWallet, models.LedgerSuccess, PayoutRef(order.ID)))
	if errors.Is(err, apperrors.ErrPaymentAlreadyProcessed) {
		return fmt.Errorf("%w: payout exists", apperrors.ErrConflict)
	}
	return err
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
	}
}
