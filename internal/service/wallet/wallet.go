// Package wallet is the only place that changes account balances.
package wallet

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
)

// Accessor is stateless: every call works on the repo it is given,
// so callers decide which transaction a balance change belongs to.
type Accessor struct{}

func New() Accessor {
	return Accessor{}
}

// Credit adds a positive amount to the account
func (Accessor) Credit(ctx context.Context, repo repository.AccountRepo, accountID uuid.UUID, amount decimal.Decimal) (models.Account, error) {
	if err := validateAmount(amount); err != nil {
		return models.Account{}, err
	}

	account, err := repo.Credit(ctx, accountID, amount)
	if err != nil {
		return account, fmt.Errorf("credit failed: %w", err)
	}

	return account, nil
}

// DebitIfSufficient subtracts amount only if the balance covers it.
// Returns apperrors.ErrBalanceInsufficient with the balance untouched otherwise.
func (Accessor) DebitIfSufficient(ctx context.Context, repo repository.AccountRepo, accountID uuid.UUID, amount decimal.Decimal) (models.Account, error) {
	if err := validateAmount(amount); err != nil {
		return models.Account{}, err
	}

	account, err := repo.DebitIfSufficient(ctx, accountID, amount)
	if err != nil {
		return account, fmt.Errorf("debit failed: %w", err)
	}

	return account, nil
}

// Lock takes row locks on the accounts in one fixed order (by id), so two transactions
// touching the same pair of accounts from opposite sides wait instead of deadlocking.
// Call it before the first balance change of a transaction that touches more than one account.
func (Accessor) Lock(ctx context.Context, repo repository.AccountRepo, accountIDs ...uuid.UUID) error {
	ids := slices.Clone(accountIDs)
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	ids = slices.Compact(ids)

	for _, id := range ids {
		if _, err := repo.LockAccount(ctx, id); err != nil {
			return fmt.Errorf("lock failed: %w", err)
		}
	}
	return nil
}

func (Accessor) Balance(ctx context.Context, repo repository.AccountRepo, accountID uuid.UUID) (decimal.Decimal, error) {
	account, err := repo.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// MaxAmount is the largest value the NUMERIC(14, 2) money columns hold
var MaxAmount = decimal.RequireFromString("999999999999.99")

// Money is kept with cent precision; anything finer is rejected rather than rounded
func validateAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return fmt.Errorf("%w: must be positive", apperrors.ErrInvalidAmount)
	case !amount.Equal(amount.Round(2)):
		return fmt.Errorf("%w: at most two decimal places allowed", apperrors.ErrInvalidAmount)
	case amount.GreaterThan(MaxAmount):
		return fmt.Errorf("%w: must not exceed %s", apperrors.ErrInvalidAmount, MaxAmount.StringFixed(2))
	default:
		return nil
	}
}

// ValidateAmount is exported for callers that want to fail before opening a transaction
func ValidateAmount(amount decimal.Decimal) error {
	return validateAmount(amount)
}
