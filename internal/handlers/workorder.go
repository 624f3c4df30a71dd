package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/handlers/render"
	"github.com/nkiryanov/escrow/internal/logger"
	"github.com/nkiryanov/escrow/internal/models"
	"github.com/nkiryanov/escrow/internal/service/workorder"
)

// Offer is made by the contractor to the hiring party
func handleCreateOrder(workOrderService workOrderService, l logger.Logger) http.Handler {
	type request struct {
		HiringPartyID uuid.UUID       `json:"hiring_party_id" validate:"required"`
		Title         string          `json:"title" validate:"required,max=200"`
		Description   string          `json:"description" validate:"max=5000"`
		Price         decimal.Decimal `json:"price"`
		DurationDays  int             `json:"duration_days" validate:"required,min=1"`
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

		order, err := workOrderService.CreateOffer(r.Context(), user.ID, workorder.OfferParams{
			HiringPartyID: data.HiringPartyID,
			Title:         data.Title,
			Description:   data.Description,
			Price:         data.Price,
			DurationDays:  data.DurationDays,
		})
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSONWithStatus(w, newWorkOrderResponse(order), http.StatusCreated)
	})
}

func handleListOrders(workOrderService workOrderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		orders, err := workOrderService.ListWorkOrders(r.Context(), user.ID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		res := make([]workOrderResponse, 0, len(orders))
		for _, o := range orders {
			res = append(res, newWorkOrderResponse(o))
		}
		render.JSON(w, res)
	})
}

func handleGetOrder(workOrderService workOrderService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		orderID, ok := pathID(w, r)
		if !ok {
			return
		}

		order, err := workOrderService.GetWorkOrder(r.Context(), orderID, user.ID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newWorkOrderResponse(order))
	})
}

func handleTransition(workOrderService workOrderService, l logger.Logger) http.Handler {
	type request struct {
		Status string `json:"status" validate:"required"`
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

		order, err := workOrderService.Transition(r.Context(), orderID, user.ID, models.WorkOrderStatus(data.Status))
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, newWorkOrderResponse(order))
	})
}
