package workorder

import (
	"fmt"
	"slices"

	"github.com/nkiryanov/escrow/internal/apperrors"
	"github.com/nkiryanov/escrow/internal/models"
)

type edge struct {
	from models.WorkOrderStatus
	to   models.WorkOrderStatus
}

var (
	hiring     = []models.Party{models.PartyHiring}
	contractor = []models.Party{models.PartyContractor}
	both       = []models.Party{models.PartyHiring, models.PartyContractor}
)

// Every legal move and who may make it. Anything absent is illegal.
var transitions = map[edge][]models.Party{
	{models.WorkOrderOfferPending, models.WorkOrderInProgress}:     hiring,
	{models.WorkOrderInProgress, models.WorkOrderSubmitted}:        contractor,
	{models.WorkOrderRevisionRequested, models.WorkOrderSubmitted}: contractor,
	{models.WorkOrderSubmitted, models.WorkOrderCompleted}:         hiring,
	{models.WorkOrderSubmitted, models.WorkOrderRevisionRequested}: hiring,
	{models.WorkOrderOfferPending, models.WorkOrderDisputed}:       both,
	{models.WorkOrderInProgress, models.WorkOrderDisputed}:         both,
	{models.WorkOrderSubmitted, models.WorkOrderDisputed}:          both,
	{models.WorkOrderRevisionRequested, models.WorkOrderDisputed}:  both,
}

// Allowed checks the move against the transition table.
// Unknown moves give apperrors.ErrIllegalTransition, a known move by the wrong party gives apperrors.ErrNotFoundOrUnauthorized.
func Allowed(from, to models.WorkOrderStatus, party models.Party) error {
	parties, ok := transitions[edge{from, to}]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrIllegalTransition, from, to)
	}
	if !slices.Contains(parties, party) {
		return fmt.Errorf("%w: %s may not move %s -> %s", apperrors.ErrNotFoundOrUnauthorized, party, from, to)
	}
	return nil
}
