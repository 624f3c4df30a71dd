package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the wallet of a user. One per user, id equals the user id.
// Balance is never negative.
type Account struct {
	UserID    uuid.UUID
	Balance   decimal.Decimal
	UpdatedAt time.Time
}
