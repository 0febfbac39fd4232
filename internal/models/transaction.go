package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the DB-facing representation of one transaction-log row.
// Rows are append-only; Kind holds the domain kind's string form.
type Transaction struct {
	TransactionID string          `db:"transaction_id"`
	AccountID     string          `db:"account_id"`
	Amount        decimal.Decimal `db:"amount"`
	Kind          string          `db:"kind"`
	Description   string          `db:"description"`
	OccurredAt    time.Time       `db:"occurred_at"`
}
