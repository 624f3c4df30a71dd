package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/handlers/render"
	"github.com/nkiryanov/escrow/internal/handlers/userctx"
	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/models"
)

// currentUser is set by the auth middleware; missing user means the route was wired without it
func currentUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
	}
	return user, ok
}

func handleUserMe() http.Handler {
	type response struct {
		ID       uuid.UUID   `json:"id"`
		Username string      `json:"username"`
		Role     models.Role `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		render.JSON(w, response{ID: user.ID, Username: user.Username, Role: user.Role})
	})
}

func handleUserBalance(userService userService, l logger.Logger) http.Handler {
	type response struct {
		Balance   decimal.Decimal `json:"balance"`
		UpdatedAt time.Time       `json:"updated_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		account, err := userService.GetBalance(r.Context(), user.ID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, response{Balance: account.Balance, UpdatedAt: account.UpdatedAt})
	})
}
