package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerStatus string

const (
	LedgerPending LedgerStatus = "PENDING"
	LedgerSuccess LedgerStatus = "SUCCESS"
	LedgerFailed  LedgerStatus = "FAILED"
)

type PaymentMethod string

const (
	MethodWallet       PaymentMethod = "WALLET"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCard         PaymentMethod = "CARD"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(s); m {
	case MethodWallet, MethodBankTransfer, MethodCard:
		return m, true
	default:
		return "", false
	}
}

type LedgerKind string

const (
	KindDeposit    LedgerKind = "DEPOSIT"
	KindTransfer   LedgerKind = "TRANSFER"
	KindEscrowHold LedgerKind = "ESCROW_HOLD"
	KindPayout     LedgerKind = "PAYOUT"
	KindWithdrawal LedgerKind = "WITHDRAWAL"
)

// LedgerFlow describes who money moves between. Exactly one variant per entry.
type LedgerFlow interface {
	Kind() LedgerKind
}

// Money entering a wallet from outside (card, bank)
type Deposit struct {
	Payer    uuid.UUID
	Receiver uuid.UUID
}

// Wallet to wallet
type Transfer struct {
	Payer    uuid.UUID
	Receiver uuid.UUID
}

// Funds taken from the hiring party and held against a work order
type EscrowHold struct {
	Payer     uuid.UUID
	WorkOrder uuid.UUID
}

// Held funds released to the contractor
type Payout struct {
	Payer     uuid.UUID
	Receiver  uuid.UUID
	WorkOrder uuid.UUID
}

// Money leaving the system to the requester's bank
type Withdrawal struct {
	Requester uuid.UUID
}

func (Deposit) Kind() LedgerKind    { return KindDeposit }
func (Transfer) Kind() LedgerKind   { return KindTransfer }
func (EscrowHold) Kind() LedgerKind { return KindEscrowHold }
func (Payout) Kind() LedgerKind     { return KindPayout }
func (Withdrawal) Kind() LedgerKind { return KindWithdrawal }

type LedgerEntry struct {
	ID            uuid.UUID
	Kind          LedgerKind
	Amount        decimal.Decimal
	Status        LedgerStatus
	Method        PaymentMethod
	PayerID       *uuid.UUID
	ReceiverID    *uuid.UUID
	WorkOrderID   *uuid.UUID
	ExternalRef   string
	FailureReason string
	CreatedAt     time.Time
	ResolvedAt    *time.Time
	ResolvedBy    *uuid.UUID
}

// NewLedgerEntry builds an entry whose counterparty columns come from the flow.
func NewLedgerEntry(flow LedgerFlow, amount decimal.Decimal, method PaymentMethod, status LedgerStatus, externalRef string) LedgerEntry {
	e := LedgerEntry{
		ID:          uuid.New(),
		Kind:        flow.Kind(),
		Amount:      amount,
		Status:      status,
		Method:      method,
		ExternalRef: externalRef,
	}

	switch f := flow.(type) {
	case Deposit:
		e.PayerID, e.ReceiverID = ptr(f.Payer), ptr(f.Receiver)
	case Transfer:
		e.PayerID, e.ReceiverID = ptr(f.Payer), ptr(f.Receiver)
	case EscrowHold:
		e.PayerID, e.WorkOrderID = ptr(f.Payer), ptr(f.WorkOrder)
	case Payout:
		e.PayerID, e.ReceiverID, e.WorkOrderID = ptr(f.Payer), ptr(f.Receiver), ptr(f.WorkOrder)
	case Withdrawal:
		e.PayerID = ptr(f.Requester)
	}

	return e
}

// Flow restores the typed variant from the stored columns.
// Returns nil if the entry kind is unknown.
func (e LedgerEntry) Flow() LedgerFlow {
	switch e.Kind {
	case KindDeposit:
		return Deposit{Payer: val(e.PayerID), Receiver: val(e.ReceiverID)}
	case KindTransfer:
		return Transfer{Payer: val(e.PayerID), Receiver: val(e.ReceiverID)}
	case KindEscrowHold:
		return EscrowHold{Payer: val(e.PayerID), WorkOrder: val(e.WorkOrderID)}
	case KindPayout:
		return Payout{Payer: val(e.PayerID), Receiver: val(e.ReceiverID), WorkOrder: val(e.WorkOrderID)}
	case KindWithdrawal:
		return Withdrawal{Requester: val(e.PayerID)}
	default:
		return nil
	}
}

// Involves reports whether the user is payer or receiver of the entry
func (e LedgerEntry) Involves(userID uuid.UUID) bool {
	return (e.PayerID != nil && *e.PayerID == userID) || (e.ReceiverID != nil && *e.ReceiverID == userID)
}

// ClientRef scopes a caller supplied reference by its owner.
// Refs generated by the service never start with a user id, so the two can't collide.
func ClientRef(owner uuid.UUID, ref string) string {
	return owner.String() + ":" + ref
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func val(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
