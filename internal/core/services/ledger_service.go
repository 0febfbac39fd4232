package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skalice/ledger-engine/internal/apperrors"
	"github.com/skalice/ledger-engine/internal/core/domain"
	portsrepo "github.com/skalice/ledger-engine/internal/core/ports/repositories"
	portssvc "github.com/skalice/ledger-engine/internal/core/ports/services"
	"github.com/skalice/ledger-engine/internal/middleware"
)

// LedgerService is the optimistic balance updater plus the read-through
// snapshot path. The account row's version column is the only point of
// mutual exclusion: no lock is held across any I/O wait.
type LedgerService struct {
	LedgerRepository portsrepo.LedgerRepository
	SnapshotCache    portsrepo.SnapshotCache
	SnapshotTTL      time.Duration
}

// NewLedgerService wires the updater with its store and cache.
func NewLedgerService(repo portsrepo.LedgerRepository, cache portsrepo.SnapshotCache, snapshotTTL time.Duration) *LedgerService {
	return &LedgerService{
		LedgerRepository: repo,
		SnapshotCache:    cache,
		SnapshotTTL:      snapshotTTL,
	}
}

var _ portssvc.LedgerSvc = (*LedgerService)(nil)

// validateSubmission enforces the engine-level shape rules shared by the
// direct and relay paths.
func validateSubmission(amount decimal.Decimal, kind domain.TransactionKind, description string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", apperrors.ErrValidation)
	}
	if kind != domain.Debit && kind != domain.Credit {
		return fmt.Errorf("%w: unknown transaction kind %q", apperrors.ErrValidation, kind)
	}
	if description == "" || len(description) > domain.MaxDescriptionLen {
		return fmt.Errorf("%w: description must be 1-%d characters", apperrors.ErrValidation, domain.MaxDescriptionLen)
	}
	return nil
}

// SubmitTransaction applies a transaction to the durable balance.
//
// The decision to accept or reject is always made against the authoritative
// versioned row, never against a cached snapshot. The commit is conditioned
// on the version read here; if another writer advanced it first, the caller
// receives apperrors.ErrConcurrentModification and decides whether to retry.
func (s *LedgerService) SubmitTransaction(ctx context.Context, accountID string, amount decimal.Decimal, kind domain.TransactionKind, description string) (*domain.AccountSummary, error) {
	if err := validateSubmission(amount, kind, description); err != nil {
		return nil, err
	}

	record := domain.TransactionRecord{
		TransactionID: uuid.NewString(),
		AccountID:     accountID,
		Amount:        amount,
		Kind:          kind,
		Description:   description,
	}
	return s.apply(ctx, record)
}

// ApplyQueued applies a relayed transaction, reusing the message's
// transaction ID so a redelivered message cannot commit twice.
//
// The duplicate check must come before the limit decision: a redelivered
// message already moved the balance, so re-running the floor check against
// the post-mutation balance could misreport the replay as a business
// rejection. The commit's unique-key guard stays as the backstop for two
// deliveries racing past this check.
func (s *LedgerService) ApplyQueued(ctx context.Context, queued domain.QueuedTransaction) (*domain.AccountSummary, error) {
	if err := validateSubmission(queued.Amount, queued.Kind, queued.Description); err != nil {
		return nil, err
	}
	if queued.TransactionID == "" {
		return nil, fmt.Errorf("%w: queued transaction has no ID", apperrors.ErrValidation)
	}

	exists, err := s.LedgerRepository.TransactionExists(ctx, queued.TransactionID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: transaction %s", apperrors.ErrDuplicate, queued.TransactionID)
	}

	record := domain.TransactionRecord{
		TransactionID: queued.TransactionID,
		AccountID:     queued.AccountID,
		Amount:        queued.Amount,
		Kind:          queued.Kind,
		Description:   queued.Description,
	}
	return s.apply(ctx, record)
}

func (s *LedgerService) apply(ctx context.Context, record domain.TransactionRecord) (*domain.AccountSummary, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	account, err := s.LedgerRepository.FindAccountByID(ctx, record.AccountID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrAccountNotFound) {
			logger.Error("Failed to read account before mutation", slog.String("error", err.Error()), slog.String("account_id", record.AccountID))
		}
		return nil, err
	}

	proposed := record.Kind.Apply(account.Balance, record.Amount)
	if proposed.LessThan(account.Floor()) {
		// Rejected before any write; no state is mutated.
		return nil, fmt.Errorf("%w: account %s balance %s cannot absorb %s %s",
			apperrors.ErrInsufficientLimit, record.AccountID, account.Balance, record.Kind, record.Amount)
	}

	record.OccurredAt = time.Now().UTC()
	if err := s.LedgerRepository.CommitTransaction(ctx, record.AccountID, account.Version, proposed, record); err != nil {
		if errors.Is(err, apperrors.ErrInfrastructure) {
			logger.Error("Failed to commit transaction", slog.String("error", err.Error()), slog.String("account_id", record.AccountID))
		}
		return nil, err
	}

	// The commit is durable; a cache-invalidation failure must not undo it.
	// Log and move on: the entry's TTL bounds how long staleness can last.
	if err := s.SnapshotCache.Invalidate(ctx, record.AccountID); err != nil {
		logger.Error("Cache invalidation failed after commit; cache is stale until next invalidation",
			slog.String("error", err.Error()), slog.String("account_id", record.AccountID))
	}

	logger.Info("Transaction committed",
		slog.String("account_id", record.AccountID),
		slog.String("transaction_id", record.TransactionID),
		slog.String("kind", string(record.Kind)),
		slog.Int64("version", account.Version+1),
	)

	return &domain.AccountSummary{
		AccountID:   record.AccountID,
		Balance:     proposed,
		CreditLimit: account.CreditLimit,
		Version:     account.Version + 1,
	}, nil
}

// GetSnapshot serves the account's balance block and recent-history window,
// reading through the snapshot cache. A cache miss or cache failure falls
// back to the durable store; the repopulating write is version-guarded so it
// can never mask a newer mutation.
func (s *LedgerService) GetSnapshot(ctx context.Context, accountID string) (*domain.AccountSnapshot, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	snapshot, err := s.SnapshotCache.GetSnapshot(ctx, accountID)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, apperrors.ErrCacheMiss) {
		logger.Warn("Snapshot cache read failed; falling back to store", slog.String("error", err.Error()), slog.String("account_id", accountID))
	}

	account, err := s.LedgerRepository.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	recent, err := s.LedgerRepository.FindRecentTransactions(ctx, accountID, domain.SnapshotHistoryLimit)
	if err != nil {
		logger.Error("Failed to read recent transactions", slog.String("error", err.Error()), slog.String("account_id", accountID))
		return nil, err
	}

	fresh := domain.AccountSnapshot{
		AccountID:          account.AccountID,
		Balance:            account.Balance,
		CreditLimit:        account.CreditLimit,
		Version:            account.Version,
		TakenAt:            time.Now().UTC(),
		RecentTransactions: recent,
	}

	if err := s.SnapshotCache.PutSnapshot(ctx, fresh, s.SnapshotTTL); err != nil {
		logger.Warn("Snapshot cache repopulation failed", slog.String("error", err.Error()), slog.String("account_id", accountID))
	}

	return &fresh, nil
}
