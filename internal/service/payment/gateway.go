package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/escrow/internal/models"
)

const DefaultApprovedCardNumber = "4242424242424242"

// Charge is what the gateway is asked to authorize
type Charge struct {
	Method     models.PaymentMethod
	Amount     decimal.Decimal
	CardNumber string
}

type Decision struct {
	Approved  bool
	Reference string
	Reason    string // set when declined
}

// Gateway connects to an external payment processor.
// An error means no decision was made (e.g. context canceled), not a decline.
type Gateway interface {
	Authorize(ctx context.Context, charge Charge) (Decision, error)
}

// SimulatedGateway stands in for real processors.
// Bank transfers settle after BankDelay; cards are approved only for ApprovedCardNumber.
type SimulatedGateway struct {
	BankDelay          time.Duration
	ApprovedCardNumber string
}

func (g SimulatedGateway) Authorize(ctx context.Context, charge Charge) (Decision, error) {
	switch charge.Method {
	case models.MethodBankTransfer:
		if g.BankDelay > 0 {
			timer := time.NewTimer(g.BankDelay)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return Decision{}, ctx.Err()
			case <-timer.C:
			}
		}
		return approved(), nil

	case models.MethodCard:
		approvedNumber := g.ApprovedCardNumber
		if approvedNumber == "" {
			approvedNumber = DefaultApprovedCardNumber
		}
		if charge.CardNumber != approvedNumber {
			return Decision{Reason: "card declined by issuer"}, nil
		}
		return approved(), nil

	default:
		return Decision{Reason: "method is not processed by gateway"}, nil
	}
}

func approved() Decision {
	return Decision{Approved: true, Reference: uuid.NewString()}
}
