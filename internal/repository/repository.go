package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/models"
)

// Storage groups repositories sharing one connection or transaction
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Account() AccountRepo
	WorkOrder() WorkOrderRepo
	Ledger() LedgerRepo
	Review() ReviewRepo

	// Run fn in a transaction. Nested calls open a savepoint.
	// Commit if fn returns nil, rollback otherwise.
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string, role models.Role) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	Save(ctx context.Context, token models.RefreshToken) error

	// Return the token even if it expired or used
	// If not found must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Mark token as used
	// If the token is already used, must not overwrite 'usedAt' and has to return apperrors.ErrRefreshTokenIsUsed
	MarkUsed(ctx context.Context, tokenString string) (usedAt time.Time, err error)

	// Mark every unused token of the user as used. Returns how many were revoked.
	RevokeUserTokens(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Account repository. Mutations are meant to be called by the wallet accessor only.
type AccountRepo interface {
	// Create zero balance account for the user
	CreateAccount(ctx context.Context, userID uuid.UUID) (models.Account, error)

	// If not found must return apperrors.ErrAccountNotFound
	GetAccount(ctx context.Context, userID uuid.UUID) (models.Account, error)

	// Take row lock on the account for the rest of the transaction.
	// If not found must return apperrors.ErrAccountNotFound
	LockAccount(ctx context.Context, userID uuid.UUID) (models.Account, error)

	// Add amount unconditionally
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Account, error)

	// Subtract amount only if balance covers it; check and write are one statement
	// Has to return apperrors.ErrBalanceInsufficient or apperrors.ErrAccountNotFound
	DebitIfSufficient(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Account, error)
}

type UpdateWorkOrderStatus struct {
	ID   uuid.UUID
	From models.WorkOrderStatus
	To   models.WorkOrderStatus

	IncrementRevision bool
	CompletedAt       *time.Time
}

type WorkOrderRepo interface {
	CreateWorkOrder(ctx context.Context, order models.WorkOrder) (models.WorkOrder, error)

	// Get order; lock the row until transaction end if lock is true
	// If not found must return apperrors.ErrWorkOrderNotFound
	GetWorkOrder(ctx context.Context, id uuid.UUID, lock bool) (models.WorkOrder, error)

	// Move order to a new status if it is still in 'From' status
	// If status has changed meanwhile has to return apperrors.ErrConflict
	UpdateStatus(ctx context.Context, upd UpdateWorkOrderStatus) (models.WorkOrder, error)

	// Orders where the user is either party, newest first
	ListWorkOrders(ctx context.Context, userID uuid.UUID) ([]models.WorkOrder, error)
}

type LedgerRepo interface {
	// Insert entry
	// If external ref is taken has to return apperrors.ErrPaymentAlreadyProcessed
	CreateEntry(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error)

	// If not found must return apperrors.ErrPaymentNotFound
	GetEntry(ctx context.Context, id uuid.UUID) (models.LedgerEntry, error)
	GetEntryByExternalRef(ctx context.Context, externalRef string) (models.LedgerEntry, error)

	// Set final status on a pending withdrawal
	// If entry is not pending anymore has to return apperrors.ErrAlreadyProcessed
	// If not found has to return apperrors.ErrWithdrawalNotFound
	ResolveWithdrawal(ctx context.Context, id uuid.UUID, status models.LedgerStatus, resolvedBy uuid.UUID) (models.LedgerEntry, error)

	// Pending withdrawals, oldest first
	ListPendingWithdrawals(ctx context.Context) ([]models.LedgerEntry, error)

	// Entries of the given kinds where user is payer or receiver, newest first
	ListUserEntries(ctx context.Context, userID uuid.UUID, kinds ...models.LedgerKind) ([]models.LedgerEntry, error)
}

type ReviewRepo interface {
	// If review for the order exists has to return apperrors.ErrReviewAlreadyExists
	CreateReview(ctx context.Context, review models.Review) (models.Review, error)

	// If not found must return apperrors.ErrReviewNotFound
	GetReviewByWorkOrder(ctx context.Context, workOrderID uuid.UUID) (models.Review, error)
}
