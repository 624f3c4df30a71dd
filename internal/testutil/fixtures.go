package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/repository"
)

// CreateUser creates a user with an account funded with balance.
// Username gets a random suffix so tests running against the pool do not collide.
func CreateUser(t *testing.T, storage repository.Storage, username string, balance string) models.User {
	t.Helper()

	user, err := storage.User().CreateUser(t.Context(), username+"-"+uuid.NewString()[:8], "hashed", models.RoleUser)
	require.NoError(t, err)

	_, err = storage.Account().CreateAccount(t.Context(), user.ID)
	require.NoError(t, err)

	if amount := D(t, balance); amount.IsPositive() {
		_, err = storage.Account().Credit(t.Context(), user.ID, amount)
		require.NoError(t, err)
	}

	return user
}

// CreateOrder creates work order in the given status without touching balances
func CreateOrder(t *testing.T, storage repository.Storage, hiring, contractor uuid.UUID, price string, status models.WorkOrderStatus) models.WorkOrder {
	t.Helper()

	initial := status
	if status == models.WorkOrderCompleted {
		initial = models.WorkOrderSubmitted
	}

	order, err := storage.WorkOrder().CreateWorkOrder(t.Context(), models.WorkOrder{
		HiringPartyID: hiring,
		ContractorID:  contractor,
		Title:         "Landing page",
		Description:   "One page, responsive",
		Price:         D(t, price),
		DurationDays:  5,
		Status:        initial,
	})
	require.NoError(t, err)

	if status == models.WorkOrderCompleted {
		now := time.Now()
		order, err = storage.WorkOrder().UpdateStatus(t.Context(), repository.UpdateWorkOrderStatus{
			ID:          order.ID,
			From:        initial,
			To:          status,
			CompletedAt: &now,
		})
		require.NoError(t, err)
	}

	return order
}

func Balance(t *testing.T, storage repository.Storage, userID uuid.UUID) string {
	t.Helper()

	account, err := storage.Account().GetAccount(t.Context(), userID)
	require.NoError(t, err)
	return account.Balance.StringFixed(2)
}
