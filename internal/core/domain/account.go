package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a customer account within the core domain.
// This is the primary representation used by services.
type Account struct {
	AccountID   string          `json:"accountID"`   // Primary Key (UUID)
	Name        string          `json:"name"`        // User-defined name
	Balance     decimal.Decimal `json:"balance"`     // May be negative down to -CreditLimit
	CreditLimit decimal.Decimal `json:"creditLimit"` // Non-negative; the floor is -CreditLimit
	Version     int64           `json:"version"`     // Optimistic-concurrency token, bumped on every mutation
	CreatedAt   time.Time       `json:"createdAt"`
}

// Floor returns the lowest balance this account may legally reach.
func (a Account) Floor() decimal.Decimal {
	return a.CreditLimit.Neg()
}

// AccountSummary is the result of a committed balance mutation.
type AccountSummary struct {
	AccountID   string          `json:"accountID"`
	Balance     decimal.Decimal `json:"balance"`
	CreditLimit decimal.Decimal `json:"creditLimit"`
	Version     int64           `json:"version"`
}

// SnapshotHistoryLimit caps the recent-history window of a snapshot.
const SnapshotHistoryLimit = 10

// AccountSnapshot is the read model served to the gateway: current balance
// state plus the most recent transactions, capped at SnapshotHistoryLimit.
// Snapshots are denormalized into the read cache and are never authoritative.
type AccountSnapshot struct {
	AccountID          string              `json:"accountID"`
	Balance            decimal.Decimal     `json:"balance"`
	CreditLimit        decimal.Decimal     `json:"creditLimit"`
	Version            int64               `json:"version"`
	TakenAt            time.Time           `json:"takenAt"`
	RecentTransactions []TransactionRecord `json:"recentTransactions"`
}
