package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
	"github.com/nkiryanov/escrow/internal/testutil"
)

// Run fn in a transaction (or savepoint) rolled back at the end
func inTx(t *testing.T, outer DBTX, fn func(pgx.Tx, repository.Storage)) {
	t.Helper()

	testutil.InTx(outer, t, func(tx pgx.Tx) {
		fn(tx, NewStorage(tx))
	})
}

// Create user with an account holding the given balance
func createUserWithAccount(t *testing.T, storage repository.Storage, username string, balance string) models.User {
	t.Helper()

	user, err := storage.User().CreateUser(t.Context(), username, "hashed", models.RoleUser)
	require.NoError(t, err)

	_, err = storage.Account().CreateAccount(t.Context(), user.ID)
	require.NoError(t, err)

	if amount := testutil.D(t, balance); amount.IsPositive() {
		_, err = storage.Account().Credit(t.Context(), user.ID, amount)
		require.NoError(t, err)
	}

	return user
}

func createOrder(t *testing.T, storage repository.Storage, hiring, contractor uuid.UUID, price string) models.WorkOrder {
	t.Helper()

	order, err := storage.WorkOrder().CreateWorkOrder(t.Context(), models.WorkOrder{
		HiringPartyID: hiring,
		ContractorID:  contractor,
		Title:         "Logo design",
		Description:   "Vector logo, three variants",
		Price:         testutil.D(t, price),
		DurationDays:  7,
	})
	require.NoError(t, err)

	return order
}

