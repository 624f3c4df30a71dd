package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/handlers/middleware"
	"github.com/nkiryanov/escrow/internal/handlers/render"
	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/service/payment"
)

func handleCreatePayment(paymentService paymentService, l logger.Logger) http.Handler {
	type request struct {
		ReceiverID  *uuid.UUID      `json:"receiver_id"`
		WorkOrderID *uuid.UUID      `json:"work_order_id"`
		Amount      decimal.Decimal `json:"amount"`
		Method      string          `json:"method" validate:"required,oneof=WALLET BANK_TRANSFER CARD"`
		CardNumber  string          `json:"card_number" validate:"omitempty,card_number"`
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
			ref = "payment:" + key
		}

		entry, err := paymentService.RequestPayment(r.Context(), payment.Request{
			PayerID:     user.ID,
			ReceiverID:  data.ReceiverID,
			WorkOrderID: data.WorkOrderID,
			Amount:      data.Amount,
			Method:      models.PaymentMethod(data.Method),
			Details: payment.Details{
				CardNumber:  data.CardNumber,
				ExternalRef: ref,
			},
		})

		switch {
		case err == nil:
			render.JSONWithStatus(w, newLedgerEntryResponse(entry), http.StatusCreated)
		case entry.Status == models.LedgerFailed && !errors.Is(err, apperrors.ErrPaymentAlreadyProcessed):
			// Failed attempt is recorded; client gets the entry with the reason
			render.JSONWithStatus(w, newLedgerEntryResponse(entry), statusOf(err))
		default:
			renderError(w, err, l)
		}
	})
}

func handleGetPayment(paymentService paymentService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		entry, err := paymentService.GetPayment(r.Context(), user.ID, r.PathValue("ref"))
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newLedgerEntryResponse(entry))
	})
}
