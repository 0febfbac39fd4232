package repositories

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/skalice/ledger-engine/internal/core/domain"
)

// LedgerReader defines read operations against the durable ledger store.
type LedgerReader interface {
	// FindAccountByID retrieves the authoritative account row, including its
	// version token. Returns apperrors.ErrAccountNotFound if no row exists.
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)

	// FindRecentTransactions retrieves the most recent transaction records
	// for an account, newest first, capped at limit.
	FindRecentTransactions(ctx context.Context, accountID string, limit int) ([]domain.TransactionRecord, error)

	// TransactionExists reports whether a record with this ID was already
	// committed. Lets the queued path recognize a redelivered message before
	// any balance decision is made.
	TransactionExists(ctx context.Context, transactionID string) (bool, error)
}

// LedgerWriter defines the single durable write operation of the engine.
type LedgerWriter interface {
	// CommitTransaction atomically appends the transaction record and updates
	// the account's balance and version, conditioned on the row's version
	// still being expectedVersion. The insert and the conditional update
	// either both happen or neither does.
	//
	// Returns apperrors.ErrConcurrentModification when the conditional update
	// touches zero rows, and apperrors.ErrDuplicate when a record with the
	// same TransactionID was already committed.
	CommitTransaction(ctx context.Context, accountID string, expectedVersion int64, newBalance decimal.Decimal, record domain.TransactionRecord) error
}

// LedgerRepository combines ledger read and write operations.
type LedgerRepository interface {
	LedgerReader
	LedgerWriter
}
