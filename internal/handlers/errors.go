package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/handlers/render"
	"github.com/nkiryanov/escrow/internal/logger"
)

const (
	notFoundMessage  = "Not found or you are not authorized for this action"
	processedMessage = "This request was already processed"
)

// renderError maps service errors to responses.
// Missing resources, foreign resources and illegal transitions all look the same to the caller.
func renderError(w http.ResponseWriter, err error, l logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidAmount):
		render.ServiceError(w, "Amount must be a positive number up to 999999999999.99 with at most 2 decimals", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrValidation):
		render.ServiceError(w, apperrors.ValidationMessage(err), http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrNotFoundOrUnauthorized),
		errors.Is(err, apperrors.ErrIllegalTransition),
		errors.Is(err, apperrors.ErrWorkOrderNotFound),
		errors.Is(err, apperrors.ErrPaymentNotFound),
		errors.Is(err, apperrors.ErrWithdrawalNotFound),
		errors.Is(err, apperrors.ErrReviewNotFound),
		errors.Is(err, apperrors.ErrAccountNotFound):
		render.ServiceError(w, notFoundMessage, http.StatusNotFound)
	case errors.Is(err, apperrors.ErrBalanceInsufficient):
		render.ServiceError(w, "Insufficient balance", http.StatusPaymentRequired)
	case errors.Is(err, apperrors.ErrPaymentDeclined):
		render.ServiceError(w, "Payment declined", http.StatusPaymentRequired)
	case errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrAlreadyProcessed),
		errors.Is(err, apperrors.ErrPaymentAlreadyProcessed),
		errors.Is(err, apperrors.ErrReviewAlreadyExists):
		render.ServiceError(w, processedMessage, http.StatusConflict)
	default:
		l.Error("request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrBalanceInsufficient), errors.Is(err, apperrors.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	default:
		return http.StatusUnprocessableEntity
	}
}

// pathID reads {id} from the path. Malformed ids are reported as not found.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, notFoundMessage, http.StatusNotFound)
		return uuid.Nil, false
	}
	return id, true
}
