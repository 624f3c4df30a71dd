package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/models"
)

type AccountRepo struct {
	DB DBTX
}

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (user_id)
VALUES ($1)
RETURNING user_id, balance, updated_at
`

func (r *AccountRepo) CreateAccount(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, createAccount, userID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case pgErrorCode(err) == pgerrcode.UniqueViolation:
		return account, errors.New("user account already exists")
	case pgErrorCode(err) == pgerrcode.ForeignKeyViolation:
		return account, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
	default:
		return account, dbError(err)
	}
}

const getAccount = `-- name: GetAccount
SELECT user_id, balance, updated_at
FROM accounts
WHERE user_id = $1
`

func (r *AccountRepo) GetAccount(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccount, userID)
	return collectAccount(rows)
}

const lockAccount = `-- name: LockAccount
SELECT user_id, balance, updated_at
FROM accounts
WHERE user_id = $1
FOR UPDATE
`

func (r *AccountRepo) LockAccount(ctx context.Context, userID uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, lockAccount, userID)
	return collectAccount(rows)
}

const creditAccount = `-- name: CreditAccount
UPDATE accounts
SET balance = balance + $2, updated_at = now()
WHERE user_id = $1
RETURNING user_id, balance, updated_at
`

func (r *AccountRepo) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, creditAccount, userID, amount)
	account, err := collectAccount(rows)
	if pgErrorCode(err) == pgerrcode.NumericValueOutOfRange {
		return account, fmt.Errorf("repo error: %w: balance limit exceeded", apperrors.ErrInvalidAmount)
	}
	return account, err
}

// The WHERE clause is re-checked after the row lock is taken, so two debits
// racing for the same funds can't both pass.
const debitAccount = `-- name: DebitAccountIfSufficient
UPDATE accounts
SET balance = balance - $2, updated_at = now()
WHERE user_id = $1 AND balance >= $2
RETURNING user_id, balance, updated_at
`

func (r *AccountRepo) DebitIfSufficient(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, debitAccount, userID, amount)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either no account or not enough money: find out which
		if _, gerr := r.GetAccount(ctx, userID); gerr != nil {
			return account, gerr
		}
		return account, fmt.Errorf("repo error: %w", apperrors.ErrBalanceInsufficient)
	default:
		return account, dbError(err)
	}
}

func collectAccount(rows pgx.Rows) (models.Account, error) {
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, fmt.Errorf("repo error: %w", apperrors.ErrAccountNotFound)
	default:
		return account, dbError(err)
	}
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.UserID, &a.Balance, &a.UpdatedAt)
	return a, err
}
