package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's balance. Balance always equals the sum of the
// user's wallet transactions.
type Wallet struct {
	ID        string          `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    string          `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:numeric(14,2);not null;default:0"`
	Currency  string          `json:"currency" gorm:"type:varchar(3);not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// TransactionKind is the direction of a wallet transaction
type TransactionKind string

const (
	TransactionKindCredit TransactionKind = "credit"
	TransactionKindDebit  TransactionKind = "debit"
)

// Ledger reasons
const (
	ReasonTopUp             = "topup"
	ReasonBookingPrepayment = "booking_prepayment"
	ReasonBookingRefund     = "booking_refund"
	ReasonChargingSession   = "charging_session"
	ReasonTransferOut       = "transfer_out"
	ReasonTransferIn        = "transfer_in"
)

// WalletTransaction is an append-only ledger row. Amount is signed:
// debits are negative, credits positive.
type WalletTransaction struct {
	ID           string          `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       string          `json:"user_id" gorm:"type:uuid;index;not null"`
	Kind         TransactionKind `json:"kind" gorm:"type:varchar(8);not null"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	BalanceAfter decimal.Decimal `json:"balance_after" gorm:"type:numeric(14,2);not null"`
	Reason       string          `json:"reason" gorm:"type:varchar(32);not null"`
	ReferenceID  string          `json:"reference_id,omitempty" gorm:"index"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at" gorm:"type:timestamptz;index"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

// LedgerEntry is a request to move money in or out of a wallet.
// Amount is always positive; the direction comes from the call.
type LedgerEntry struct {
	UserID      string
	Amount      decimal.Decimal
	Reason      string
	ReferenceID string
	Description string
	// AllowOverdraft lets a debit drive the balance below zero
	AllowOverdraft bool
}
