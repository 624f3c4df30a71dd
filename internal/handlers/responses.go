package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/models"
)

type ledgerEntryResponse struct {
	ID            uuid.UUID            `json:"id"`
	Kind          models.LedgerKind    `json:"kind"`
	Amount        decimal.Decimal      `json:"amount"`
	Status        models.LedgerStatus  `json:"status"`
	Method        models.PaymentMethod `json:"method"`
	PayerID       *uuid.UUID           `json:"payer_id,omitempty"`
	ReceiverID    *uuid.UUID           `json:"receiver_id,omitempty"`
	WorkOrderID   *uuid.UUID           `json:"work_order_id,omitempty"`
	ExternalRef   string               `json:"external_ref"`
	FailureReason string               `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	ResolvedAt    *time.Time           `json:"resolved_at,omitempty"`
}

func newLedgerEntryResponse(e models.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:            e.ID,
		Kind:          e.Kind,
		Amount:        e.Amount,
		Status:        e.Status,
		Method:        e.Method,
		PayerID:       e.PayerID,
		ReceiverID:    e.ReceiverID,
		WorkOrderID:   e.WorkOrderID,
		ExternalRef:   e.ExternalRef,
		FailureReason: e.FailureReason,
		CreatedAt:     e.CreatedAt,
		ResolvedAt:    e.ResolvedAt,
	}
}

func newLedgerEntryList(entries []models.LedgerEntry) []ledgerEntryResponse {
	res := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, newLedgerEntryResponse(e))
	}
	return res
}

type workOrderResponse struct {
	ID            uuid.UUID              `json:"id"`
	HiringPartyID uuid.UUID              `json:"hiring_party_id"`
	ContractorID  uuid.UUID              `json:"contractor_id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description"`
	Price         decimal.Decimal        `json:"price"`
	DurationDays  int                    `json:"duration_days"`
	Status        models.WorkOrderStatus `json:"status"`
	RevisionCount int                    `json:"revision_count"`
	CreatedAt     time.Time              `json:"created_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

func newWorkOrderResponse(o models.WorkOrder) workOrderResponse {
	return workOrderResponse{
		ID:            o.ID,
		HiringPartyID: o.HiringPartyID,
		ContractorID:  o.ContractorID,
		Title:         o.Title,
		Description:   o.Description,
		Price:         o.Price,
		DurationDays:  o.DurationDays,
		Status:        o.Status,
		RevisionCount: o.RevisionCount,
		CreatedAt:     o.CreatedAt,
		CompletedAt:   o.CompletedAt,
	}
}

type reviewResponse struct {
	ID          uuid.UUID `json:"id"`
	WorkOrderID uuid.UUID `json:"work_order_id"`
	AuthorID    uuid.UUID `json:"author_id"`
	SubjectID   uuid.UUID `json:"subject_id"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newReviewResponse(r models.Review) reviewResponse {
	return reviewResponse{
		ID:          r.ID,
		WorkOrderID: r.WorkOrderID,
		AuthorID:    r.AuthorID,
		SubjectID:   r.SubjectID,
		Rating:      r.Rating,
		Comment:     r.Comment,
		CreatedAt:   r.CreatedAt,
	}
}
