package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WorkOrderStatus string

const (
	WorkOrderOfferPending      WorkOrderStatus = "OFFER_PENDING"
	WorkOrderInProgress        WorkOrderStatus = "IN_PROGRESS"
	WorkOrderSubmitted         WorkOrderStatus = "SUBMITTED"
	WorkOrderRevisionRequested WorkOrderStatus = "REVISION_REQUESTED"
	WorkOrderCompleted         WorkOrderStatus = "COMPLETED"
	WorkOrderDisputed          WorkOrderStatus = "DISPUTED"
)

var workOrderStatuses = map[WorkOrderStatus]struct{}{
	WorkOrderOfferPending:      {},
	WorkOrderInProgress:        {},
	WorkOrderSubmitted:         {},
	WorkOrderRevisionRequested: {},
	WorkOrderCompleted:         {},
	WorkOrderDisputed:          {},
}

func ParseWorkOrderStatus(s string) (WorkOrderStatus, bool) {
	status := WorkOrderStatus(s)
	_, ok := workOrderStatuses[status]
	return status, ok
}

// Terminal statuses accept no further transitions
func (s WorkOrderStatus) IsTerminal() bool {
	return s == WorkOrderCompleted || s == WorkOrderDisputed
}

// Party is the role an actor plays in a particular work order
type Party int

const (
	PartyNone Party = iota
	PartyHiring
	PartyContractor
)

func (p Party) String() string {
	switch p {
	case PartyHiring:
		return "hiring_party"
	case PartyContractor:
		return "contractor"
	default:
		return "none"
	}
}

type WorkOrder struct {
	ID            uuid.UUID
	HiringPartyID uuid.UUID
	ContractorID  uuid.UUID
	Title         string
	Description   string
	Price         decimal.Decimal
	DurationDays  int
	Status        WorkOrderStatus
	RevisionCount int
	CreatedAt     time.Time
	CompletedAt   *time.Time // set only when status is COMPLETED
}

// PartyOf returns which side of the order the user is on
func (o WorkOrder) PartyOf(userID uuid.UUID) Party {
	switch userID {
	case o.HiringPartyID:
		return PartyHiring
	case o.ContractorID:
		return PartyContractor
	default:
		return PartyNone
	}
}

// Counterpart returns the other participant
func (o WorkOrder) Counterpart(userID uuid.UUID) uuid.UUID {
	if userID == o.HiringPartyID {
		return o.ContractorID
	}
	return o.HiringPartyID
}
