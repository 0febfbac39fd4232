package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the DB-facing representation of a customer account row.
type Account struct {
	AccountID   string          `db:"account_id"`
	Name        string          `db:"name"`
	Balance     decimal.Decimal `db:"balance"`
	CreditLimit decimal.Decimal `db:"credit_limit"`
	Version     int64           `db:"version"`
	CreatedAt   time.Time       `db:"created_at"`
}
