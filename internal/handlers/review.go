package handlers

import (
	"net/http"

	"github.com/nkiryanov/escrow/internal/handlers/render"
	"github.com/nkiryanov/escrow/internal/logger"
)

func handleCreateReview(reviewService reviewService, l logger.Logger) http.Handler {
	type request struct {
		Rating  int    `json:"rating" validate:"required"`
		Comment string `json:"comment" validate:"max=2000"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		orderID, ok := pathID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		review, err := reviewService.CreateReview(r.Context(), orderID, user.ID, data.Rating, data.Comment)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newReviewResponse(review), http.StatusCreated)
	})
}

func handleGetReview(reviewService reviewService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		orderID, ok := pathID(w, r)
		if !ok {
			return
		}

		review, err := reviewService.GetReview(r.Context(), orderID, user.ID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newReviewResponse(review))
	})
}
