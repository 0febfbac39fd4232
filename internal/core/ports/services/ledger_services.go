package services

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/skalice/ledger-engine/internal/core/domain"
)

// LedgerSvc is the gateway-facing API of the balance-mutation engine.
type LedgerSvc interface {
	// SubmitTransaction validates and applies a transaction against the
	// durable balance using the version-conditioned write. Errors:
	// apperrors.ErrAccountNotFound, apperrors.ErrInsufficientLimit,
	// apperrors.ErrConcurrentModification, apperrors.ErrInfrastructure.
	SubmitTransaction(ctx context.Context, accountID string, amount decimal.Decimal, kind domain.TransactionKind, description string) (*domain.AccountSummary, error)

	// GetSnapshot returns balance, credit limit and the recent-history
	// window for an account, reading through the snapshot cache.
	GetSnapshot(ctx context.Context, accountID string) (*domain.AccountSnapshot, error)
}

// QueuedApplier applies relayed transactions through the balance updater.
// The message's transaction ID is reused as the record ID, which is what
// makes redelivery idempotent.
type QueuedApplier interface {
	ApplyQueued(ctx context.Context, queued domain.QueuedTransaction) (*domain.AccountSummary, error)
}

// RelaySvc enqueues transactions for asynchronous application and answers
// with a best-effort provisional view of the account.
type RelaySvc interface {
	// EnqueueTransaction publishes the transaction to the relay queue and
	// returns the account state as currently visible (possibly stale).
	EnqueueTransaction(ctx context.Context, accountID string, amount decimal.Decimal, kind domain.TransactionKind, description string) (*domain.AccountSummary, error)
}
