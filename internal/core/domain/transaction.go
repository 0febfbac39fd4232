package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind indicates whether a transaction debits or credits the account.
type TransactionKind string

const (
	Debit  TransactionKind = "DEBIT"
	Credit TransactionKind = "CREDIT"
)

// Apply returns the balance after applying an amount of this kind.
func (k TransactionKind) Apply(balance, amount decimal.Decimal) decimal.Decimal {
	if k == Debit {
		return balance.Sub(amount)
	}
	return balance.Add(amount)
}

// MaxDescriptionLen bounds the free-text description of a transaction.
const MaxDescriptionLen = 10

// TransactionRecord is one line of the append-only transaction log. Records
// are created exactly once, atomically with the account version bump they
// cause, and are never mutated or deleted.
type TransactionRecord struct {
	TransactionID string          `json:"transactionID"` // Primary Key (UUID)
	AccountID     string          `json:"accountID"`     // FK -> accounts.account_id (Not Null)
	Amount        decimal.Decimal `json:"amount"`        // Magnitude, always positive
	Kind          TransactionKind `json:"kind"`          // DEBIT or CREDIT
	Description   string          `json:"description"`   // Bounded-length text
	OccurredAt    time.Time       `json:"occurredAt"`    // Assigned at commit time, never client-supplied
}

// QueuedTransaction is the relay-mode message. Delivery is at-least-once:
// the TransactionID doubles as the idempotency key, so redelivery after a
// crash between commit and acknowledgment cannot apply the amount twice.
// A queued message is not proof of a committed mutation; only the resulting
// TransactionRecord and version bump are.
type QueuedTransaction struct {
	TransactionID string          `json:"transactionID"`
	AccountID     string          `json:"accountID"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          TransactionKind `json:"kind"`
	Description   string          `json:"description"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
}
