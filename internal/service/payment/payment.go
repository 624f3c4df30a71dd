// Package payment accepts money into the system and records every attempt in the ledger.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
	"github.com/nkiryanov/escrow/internal/service/notify"
	"github.com/nkiryanov/escrow/internal/service/validate"
	"github.com/nkiryanov/escrow/internal/service/wallet"
	"github.com/nkiryanov/escrow/internal/service/workorder"
)

type Details struct {
	CardNumber string

	// Idempotency token supplied by the client. Generated if empty.
	ExternalRef string
}

type Request struct {
	PayerID     uuid.UUID
	ReceiverID  *uuid.UUID
	Amount      decimal.Decimal
	Method      models.PaymentMethod
	WorkOrderID *uuid.UUID
	Details     Details
}

type Service struct {
	storage  repository.Storage
	wallet   wallet.Accessor
	gateway  Gateway
	notifier notify.Notifier
	logger   logger.Logger
}

func NewService(storage repository.Storage, gateway Gateway, notifier notify.Notifier, l logger.Logger) *Service {
	return &Service{
		storage:  storage,
		wallet:   wallet.New(),
		gateway:  gateway,
		notifier: notifier,
		logger:   l,
	}
}

// RequestPayment validates the request, asks the gateway and writes exactly one ledger entry.
//
// Declined or business-failed payments are stored as FAILED and returned together with the cause
// (apperrors.ErrPaymentDeclined, apperrors.ErrBalanceInsufficient, ...).
// Reusing an external ref returns the stored entry and apperrors.ErrPaymentAlreadyProcessed.
func (s *Service) RequestPayment(ctx context.Context, req Request) (models.LedgerEntry, error) {
	if err := validateRequest(req); err != nil {
		return models.LedgerEntry{}, err
	}

	ref := "pay:" + uuid.NewString()
	if req.Details.ExternalRef != "" {
		ref = models.ClientRef(req.PayerID, req.Details.ExternalRef)
	}

	if entry, err := s.alreadyProcessed(ctx, req.PayerID, ref); err != nil {
		return entry, err
	}

	if err := s.checkCounterparty(ctx, req); err != nil {
		return models.LedgerEntry{}, err
	}

	flow := flowOf(req)
	entry := models.NewLedgerEntry(flow, req.Amount, req.Method, models.LedgerSuccess, ref)

	var failure error

	if req.Method != models.MethodWallet {
		decision, err := s.gateway.Authorize(ctx, Charge{Method: req.Method, Amount: req.Amount, CardNumber: req.Details.CardNumber})
		if err != nil {
			return models.LedgerEntry{}, fmt.Errorf("gateway error: %w", err)
		}
		if !decision.Approved {
			failure = fmt.Errorf("%w: %s", apperrors.ErrPaymentDeclined, decision.Reason)
		}
	}

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		if failure == nil {
			// Savepoint: a business failure undoes balance changes but the entry is still written
			err := tx.InTx(ctx, func(sp repository.Storage) error {
				return s.apply(ctx, sp, req)
			})
			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrPersistence):
				return err
			default:
				failure = err
			}
		}

		if failure != nil {
			entry.Status = models.LedgerFailed
			entry.FailureReason = failure.Error()
		}

		created, err := tx.Ledger().CreateEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry = created
		return nil
	})

	switch {
	case errors.Is(err, apperrors.ErrPaymentAlreadyProcessed):
		// Lost a race with a concurrent call using the same ref
		return s.alreadyProcessed(ctx, req.PayerID, ref)
	case err != nil:
		return models.LedgerEntry{}, fmt.Errorf("payment failed: %w", err)
	}

	if failure != nil {
		s.logger.Info("payment failed", "entry_id", entry.ID, "kind", entry.Kind, "reason", entry.FailureReason)
		return entry, failure
	}

	s.logger.Info("payment accepted", "entry_id", entry.ID, "kind", entry.Kind, "method", entry.Method, "amount", entry.Amount.String())
	s.notifySuccess(ctx, entry)

	return entry, nil
}

// GetPayment lets a client find out the outcome of a payment it lost track of.
// ref is either the one the payer sent or the full stored ref, which is what the receiver sees.
func (s *Service) GetPayment(ctx context.Context, userID uuid.UUID, ref string) (models.LedgerEntry, error) {
	entry, err := s.storage.Ledger().GetEntryByExternalRef(ctx, models.ClientRef(userID, ref))
	if errors.Is(err, apperrors.ErrPaymentNotFound) {
		entry, err = s.storage.Ledger().GetEntryByExternalRef(ctx, ref)
	}

	switch {
	case errors.Is(err, apperrors.ErrPaymentNotFound):
		return models.LedgerEntry{}, apperrors.ErrNotFoundOrUnauthorized
	case err != nil:
		return models.LedgerEntry{}, err
	case !entry.Involves(userID):
		return models.LedgerEntry{}, apperrors.ErrNotFoundOrUnauthorized
	default:
		return entry, nil
	}
}

// apply moves the money and advances the order; runs inside a savepoint.
// Locks follow the order used everywhere else: work order row first, then accounts by id.
func (s *Service) apply(ctx context.Context, tx repository.Storage, req Request) error {
	var order models.WorkOrder
	if req.WorkOrderID != nil {
		var err error
		order, err = tx.WorkOrder().GetWorkOrder(ctx, *req.WorkOrderID, true)
		if err != nil {
			return err
		}
		if err := checkOrderPayable(order, req); err != nil {
			return err
		}
	}

	var touched []uuid.UUID
	if req.Method == models.MethodWallet {
		touched = append(touched, req.PayerID)
	}
	if req.ReceiverID != nil {
		touched = append(touched, *req.ReceiverID)
	}
	if err := s.wallet.Lock(ctx, tx.Account(), touched...); err != nil {
		return err
	}

	if req.Method == models.MethodWallet {
		if _, err := s.wallet.DebitIfSufficient(ctx, tx.Account(), req.PayerID, req.Amount); err != nil {
			return err
		}
	}

	if req.ReceiverID != nil {
		if _, err := s.wallet.Credit(ctx, tx.Account(), *req.ReceiverID, req.Amount); err != nil {
			return err
		}
	}

	if req.WorkOrderID != nil {
		_, err := tx.WorkOrder().UpdateStatus(ctx, repository.UpdateWorkOrderStatus{
			ID:   order.ID,
			From: models.WorkOrderOfferPending,
			To:   models.WorkOrderInProgress,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// alreadyProcessed returns apperrors.ErrPaymentAlreadyProcessed if the ref is used.
// The stored entry is disclosed only to its participants.
func (s *Service) alreadyProcessed(ctx context.Context, payerID uuid.UUID, ref string) (models.LedgerEntry, error) {
	existing, err := s.storage.Ledger().GetEntryByExternalRef(ctx, ref)
	switch {
	case errors.Is(err, apperrors.ErrPaymentNotFound):
		return models.LedgerEntry{}, nil
	case err != nil:
		return models.LedgerEntry{}, err
	case !existing.Involves(payerID):
		return models.LedgerEntry{}, apperrors.ErrPaymentAlreadyProcessed
	default:
		return existing, apperrors.ErrPaymentAlreadyProcessed
	}
}

// checkCounterparty fails fast before the gateway is asked for money
func (s *Service) checkCounterparty(ctx context.Context, req Request) error {
	if req.ReceiverID != nil {
		_, err := s.storage.Account().GetAccount(ctx, *req.ReceiverID)
		switch {
		case errors.Is(err, apperrors.ErrAccountNotFound):
			return apperrors.Validationf("unknown receiver")
		case err != nil:
			return err
		}
	}

	if req.WorkOrderID != nil {
		order, err := s.storage.WorkOrder().GetWorkOrder(ctx, *req.WorkOrderID, false)
		switch {
		case errors.Is(err, apperrors.ErrWorkOrderNotFound):
			return apperrors.ErrNotFoundOrUnauthorized
		case err != nil:
			return err
		}
		return checkOrderPayable(order, req)
	}

	return nil
}

func checkOrderPayable(order models.WorkOrder, req Request) error {
	switch {
	case order.PartyOf(req.PayerID) == models.PartyNone:
		return apperrors.ErrNotFoundOrUnauthorized
	case !order.Price.Equal(req.Amount):
		return apperrors.Validationf("amount must equal work order price %s", order.Price.StringFixed(2))
	default:
		// Paying for an order is accepting it
		return workorder.Allowed(order.Status, models.WorkOrderInProgress, order.PartyOf(req.PayerID))
	}
}

func validateRequest(req Request) error {
	if err := wallet.ValidateAmount(req.Amount); err != nil {
		return err
	}

	if _, ok := models.ParsePaymentMethod(string(req.Method)); !ok {
		return apperrors.Validationf("unknown payment method %q", req.Method)
	}

	switch {
	case req.PayerID == uuid.Nil:
		return apperrors.Validationf("payer required")
	case req.ReceiverID == nil && req.WorkOrderID == nil:
		return apperrors.Validationf("receiver or work order required")
	case req.ReceiverID != nil && req.WorkOrderID != nil:
		return apperrors.Validationf("receiver and work order are mutually exclusive")
	case req.Method == models.MethodWallet && req.ReceiverID != nil && *req.ReceiverID == req.PayerID:
		return apperrors.Validationf("wallet transfer to self")
	}

	if req.Method == models.MethodCard {
		if err := validate.CardNumber(req.Details.CardNumber); err != nil {
			return apperrors.Validationf("card number: %v", err)
		}
	}

	return nil
}

func flowOf(req Request) models.LedgerFlow {
	switch {
	case req.WorkOrderID != nil:
		return models.EscrowHold{Payer: req.PayerID, WorkOrder: *req.WorkOrderID}
	case req.Method == models.MethodWallet:
		return models.Transfer{Payer: req.PayerID, Receiver: *req.ReceiverID}
	default:
		return models.Deposit{Payer: req.PayerID, Receiver: *req.ReceiverID}
	}
}

func (s *Service) notifySuccess(ctx context.Context, entry models.LedgerEntry) {
	var n notify.Notification

	switch f := entry.Flow().(type) {
	case models.Deposit:
		if f.Receiver == f.Payer {
			return
		}
		n = notify.Notification{UserID: f.Receiver, Kind: notify.KindPaymentReceived, Message: "payment received: " + entry.Amount.StringFixed(2)}
	case models.Transfer:
		n = notify.Notification{UserID: f.Receiver, Kind: notify.KindPaymentReceived, Message: "payment received: " + entry.Amount.StringFixed(2)}
	case models.EscrowHold:
		order, err := s.storage.WorkOrder().GetWorkOrder(ctx, f.WorkOrder, false)
		if err != nil {
			s.logger.Warn("notification skipped", "entry_id", entry.ID, "error", err)
			return
		}
		n = notify.Notification{
			UserID:      order.ContractorID,
			Kind:        notify.KindWorkOrderChanged,
			Message:     "offer accepted, funds held in escrow",
			WorkOrderID: notify.Ref(order.ID),
		}
	default:
		return
	}

	n.LedgerEntryID = notify.Ref(entry.ID)
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
	}
}
