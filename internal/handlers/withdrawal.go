package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/handlers/middleware"
	"github.com/nkiryanov/escrow/internal/handlers/render"
	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/service/withdrawal"
)

// Funds are taken on request and returned if an admin rejects it
func handleRequestWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Amount      decimal.Decimal `json:"amount"`
		ExternalRef string          `json:"external_ref" validate:"max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		// Idempotency key doubles as the ledger reference when client gives none
		ref := data.ExternalRef
		if key := r.Header.Get(middleware.IdempotencyKeyHeader); ref == "" && key != "" {
			ref = "withdrawal:" + key
		}

		entry, err := withdrawalService.RequestWithdrawal(r.Context(), user.ID, data.Amount, ref)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newLedgerEntryResponse(entry), http.StatusAccepted)
	})
}

func handleListWithdrawals(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		entries, err := withdrawalService.ListUserWithdrawals(r.Context(), user.ID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newLedgerEntryList(entries))
	})
}

func handleListPendingWithdrawals(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, err := withdrawalService.ListPending(r.Context())
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newLedgerEntryList(entries))
	})
}

func handleResolveWithdrawal(withdrawalService withdrawalService, decision withdrawal.Decision, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := currentUser(w, r)
		if !ok {
			return
		}
		entryID, ok := pathID(w, r)
		if !ok {
			return
		}

		entry, err := withdrawalService.Resolve(r.Context(), entryID, admin.ID, decision)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newLedgerEntryResponse(entry))
	})
}
