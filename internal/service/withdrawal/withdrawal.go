// Package withdrawal handles cash-out requests and their resolution by an administrator.
//
// Funds are debited when the withdrawal is requested. Approval only settles the entry,
// rejection refunds the requester in the same transaction.
package withdrawal

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
	"github.com/nkiryanov/escrow/internal/service/wallet"
)

type Decision int

const (
	Approve Decision = iota + 1
	Reject
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
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

// RequestWithdrawal debits the amount and records a pending withdrawal.
// externalRef is scoped by the user; an empty one gets generated.
func (s *Service) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, externalRef string) (models.LedgerEntry, error) {
	if err := wallet.ValidateAmount(amount); err != nil {
		return models.LedgerEntry{}, err
	}
	ref := "withdrawal:" + uuid.NewString()
	if externalRef != "" {
		ref = models.ClientRef(userID, externalRef)
	}

	var entry models.LedgerEntry

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		if _, err := s.wallet.DebitIfSufficient(ctx, tx.Account(), userID, amount); err != nil {
			return err
		}

		flow := models.Withdrawal{Requester: userID}
		created, err := tx.Ledger().CreateEntry(ctx, models.NewLedgerEntry(flow, amount, models.MethodBankTransfer, models.LedgerPending, ref))
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("withdrawal not requested: %w", err)
	}

	s.logger.Info("withdrawal requested", "entry_id", entry.ID, "user_id", userID, "amount", amount.String())
	s.notify(ctx, notify.Notification{
		UserID:        userID,
		Kind:          notify.KindWithdrawalCreated,
		Message:       "withdrawal of " + amount.StringFixed(2) + " is waiting for approval",
		LedgerEntryID: notify.Ref(entry.ID),
	})

	return entry, nil
}

// ListPending returns withdrawals waiting for an administrator, oldest first
func (s *Service) ListPending(ctx context.Context) ([]models.LedgerEntry, error) {
	return s.storage.Ledger().ListPendingWithdrawals(ctx)
}

// ListUserWithdrawals returns user's withdrawals in any status, newest first
func (s *Service) ListUserWithdrawals(ctx context.Context, userID uuid.UUID) ([]models.LedgerEntry, error) {
	return s.storage.Ledger().ListUserEntries(ctx, userID, models.KindWithdrawal)
}

// Resolve settles or refunds a pending withdrawal. Only the first resolution takes effect,
// later ones get apperrors.ErrAlreadyProcessed.
func (s *Service) Resolve(ctx context.Context, entryID uuid.UUID, adminID uuid.UUID, decision Decision) (models.LedgerEntry, error) {
	var status models.LedgerStatus
	switch decision {
	case Approve:
		status = models.LedgerSuccess
	case Reject:
		status = models.LedgerFailed
	default:
		return models.LedgerEntry{}, apperrors.Validationf("unknown decision")
	}

	var entry models.LedgerEntry

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		resolved, err := tx.Ledger().ResolveWithdrawal(ctx, entryID, status, adminID)
		if err != nil {
			return err
		}
		entry = resolved

		if decision == Reject {
			requester := entry.Flow().(models.Withdrawal).Requester
			if _, err := s.wallet.Credit(ctx, tx.Account(), requester, entry.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, apperrors.ErrWithdrawalNotFound):
		return models.LedgerEntry{}, fmt.Errorf("withdrawal not resolved: %w", apperrors.ErrNotFoundOrUnauthorized)
	case err != nil:
		return models.LedgerEntry{}, fmt.Errorf("withdrawal not resolved: %w", err)
	}

	requester := entry.Flow().(models.Withdrawal).Requester
	s.logger.Info("withdrawal resolved", "entry_id", entry.ID, "decision", decision, "admin_id", adminID)
	s.notify(ctx, notify.Notification{
		UserID:        requester,
		Kind:          notify.KindWithdrawalResolved,
		Message:       fmt.Sprintf("withdrawal of %s: %s", entry.Amount.StringFixed(2), entry.Status),
		LedgerEntryID: notify.Ref(entry.ID),
	})

	return entry, nil
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
	}
}
