package services

import (
	"context"
	"errors"
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

// RelayService is the enqueue side of the asynchronous transaction relay.
// It validates the submission, publishes it to the durable queue and answers
// with a best-effort view of the account. The queue message is not proof of
// a committed mutation; the consumer owns the actual balance change.
type RelayService struct {
	Publisher portsrepo.TransactionPublisher
	Ledger    portsrepo.LedgerReader
}

// NewRelayService wires the enqueue path.
func NewRelayService(publisher portsrepo.TransactionPublisher, ledger portsrepo.LedgerReader) *RelayService {
	return &RelayService{Publisher: publisher, Ledger: ledger}
}

var _ portssvc.RelaySvc = (*RelayService)(nil)

// EnqueueTransaction publishes the transaction for asynchronous application.
// The account's existence is checked against the authoritative store first,
// so a message for an unknown account never enters the queue.
func (s *RelayService) EnqueueTransaction(ctx context.Context, accountID string, amount decimal.Decimal, kind domain.TransactionKind, description string) (*domain.AccountSummary, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if err := validateSubmission(amount, kind, description); err != nil {
		return nil, err
	}

	account, err := s.Ledger.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	queued := domain.QueuedTransaction{
		TransactionID: uuid.NewString(),
		AccountID:     accountID,
		Amount:        amount,
		Kind:          kind,
		Description:   description,
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := s.Publisher.Publish(ctx, queued); err != nil {
		logger.Error("Failed to publish queued transaction", slog.String("error", err.Error()), slog.String("account_id", accountID))
		return nil, err
	}

	logger.Info("Transaction enqueued",
		slog.String("account_id", accountID),
		slog.String("transaction_id", queued.TransactionID),
		slog.String("kind", string(kind)),
	)

	// Provisional: the balance below predates the queued mutation.
	return &domain.AccountSummary{
		AccountID:   account.AccountID,
		Balance:     account.Balance,
		CreditLimit: account.CreditLimit,
		Version:     account.Version,
	}, nil
}

// RelayConsumer drains the relay queue and applies each message through the
// balance updater. Per message the outcome is one of:
//
//   - committed: updater succeeded, cache invalidated, message acknowledged
//   - rejected: terminal business failure, acknowledged without retry
//   - redelivered: version conflict or infrastructure failure, message left
//     unacknowledged and reprocessed in place until it reaches a terminal
//     outcome; a restart redelivers it from the last committed offset
//
// Offsets commit positionally: acknowledging a message marks every earlier
// fetched message on its partition consumed as well. The consumer therefore
// never fetches past a message it has not acknowledged.
//
// A crash between commit and acknowledgment redelivers the message; the
// reused transaction ID turns the second application into ErrDuplicate,
// which is acknowledged as already applied.
type RelayConsumer struct {
	Consumer    portsrepo.TransactionConsumer
	Applier     portssvc.QueuedApplier
	Logger      *slog.Logger
	MaxAttempts int
	Backoff     time.Duration
}

// NewRelayConsumer wires the consumer loop.
func NewRelayConsumer(consumer portsrepo.TransactionConsumer, applier portssvc.QueuedApplier, logger *slog.Logger, maxAttempts int, backoff time.Duration) *RelayConsumer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RelayConsumer{
		Consumer:    consumer,
		Applier:     applier,
		Logger:      logger,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
	}
}

// Run fetches and processes messages until ctx is cancelled.
func (c *RelayConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Logger.Error("Failed to fetch from relay queue", slog.String("error", err.Error()))
			if !c.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		// Advancing past an unacknowledged message would let a later
		// acknowledgment commit its offset and silently drop it. Hold the
		// partition here until this message is acknowledged.
		for !c.ProcessMessage(ctx, msg) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !c.sleep(ctx) {
				return ctx.Err()
			}
		}
	}
}

// ProcessMessage runs one message through the state machine described above.
// It returns true when the message was acknowledged.
func (c *RelayConsumer) ProcessMessage(ctx context.Context, msg *portsrepo.QueuedMessage) bool {
	logger := c.Logger.With(
		slog.String("transaction_id", msg.Queued.TransactionID),
		slog.String("account_id", msg.Queued.AccountID),
	)
	ctx = middleware.ContextWithLogger(ctx, logger)

	for attempt := 1; ; attempt++ {
		_, err := c.Applier.ApplyQueued(ctx, msg.Queued)
		switch {
		case err == nil:
			return c.ack(ctx, logger, msg)

		case errors.Is(err, apperrors.ErrDuplicate):
			// Applied by an earlier delivery; the financial effect already
			// happened exactly once.
			logger.Info("Queued transaction was already applied; acknowledging redelivery")
			return c.ack(ctx, logger, msg)

		case errors.Is(err, apperrors.ErrAccountNotFound),
			errors.Is(err, apperrors.ErrInsufficientLimit),
			errors.Is(err, apperrors.ErrValidation):
			// Terminal business rejection. Re-queuing cannot make it valid.
			logger.Warn("Queued transaction rejected", slog.String("reason", err.Error()))
			return c.ack(ctx, logger, msg)

		case errors.Is(err, apperrors.ErrConcurrentModification):
			if attempt < c.MaxAttempts {
				logger.Info("Version conflict applying queued transaction; retrying", slog.Int("attempt", attempt))
				if !c.sleep(ctx) {
					return false
				}
				continue
			}
			logger.Warn("Version conflict retries exhausted", slog.Int("attempts", attempt))
			return false

		default:
			// The caller backs off and reprocesses this message; nothing
			// behind it is fetched in the meantime.
			logger.Error("Infrastructure failure applying queued transaction", slog.String("error", err.Error()))
			return false
		}
	}
}

func (c *RelayConsumer) ack(ctx context.Context, logger *slog.Logger, msg *portsrepo.QueuedMessage) bool {
	if err := c.Consumer.Ack(ctx, msg); err != nil {
		// The message will come back; the duplicate guard absorbs it.
		logger.Error("Failed to acknowledge queued transaction", slog.String("error", err.Error()))
		return false
	}
	return true
}

// sleep waits one backoff interval, returning false if ctx ended first.
func (c *RelayConsumer) sleep(ctx context.Context) bool {
	if c.Backoff <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.Backoff):
		return true
	}
}
