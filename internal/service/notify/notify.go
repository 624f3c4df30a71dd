package notify

import (
	"context"

	"github.com/google/uuid"
)

type Kind string

const (
	KindOfferReceived      Kind = "work_order.offer_received"
	KindWorkOrderChanged   Kind = "work_order.status_changed"
	KindPaymentReceived    Kind = "payment.received"
	KindWithdrawalCreated  Kind = "withdrawal.created"
	KindWithdrawalResolved Kind = "withdrawal.resolved"
)

type Notification struct {
	UserID        uuid.UUID  `json:"user_id"`
	Kind          Kind       `json:"kind"`
	Message       string     `json:"message"`
	WorkOrderID   *uuid.UUID `json:"work_order_id,omitempty"`
	LedgerEntryID *uuid.UUID `json:"ledger_entry_id,omitempty"`
}

// Notifier delivers notifications on a best effort basis.
// Callers invoke it only after their transaction committed and never fail an operation because of it.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc allows to use a function as Notifier
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Discard drops every notification
var Discard Notifier = NotifierFunc(func(context.Context, Notification) error { return nil })

func Ref(id uuid.UUID) *uuid.UUID {
	return &id
}
