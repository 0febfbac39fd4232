package repositories

import (
	"context"

	"github.com/skalice/ledger-engine/internal/core/domain"
)

// TransactionPublisher enqueues transactions for asynchronous application.
type TransactionPublisher interface {
	// Publish appends a queued transaction to the relay queue. Delivery to
	// the consumer is at-least-once.
	Publish(ctx context.Context, queued domain.QueuedTransaction) error
}

// QueuedMessage is one delivery of a queued transaction, held unacknowledged
// until the consumer decides its fate.
type QueuedMessage struct {
	Queued domain.QueuedTransaction

	// Raw is the delivery token the queue needs back on acknowledgment.
	Raw any
}

// TransactionConsumer drains the relay queue with explicit acknowledgment.
type TransactionConsumer interface {
	// Fetch blocks until the next message is delivered or ctx is done.
	Fetch(ctx context.Context) (*QueuedMessage, error)

	// Ack marks the message as processed, removing it from the queue.
	// Acknowledgment is positional: it also marks every earlier fetched
	// message on the same partition consumed, so callers must not ack a
	// message while an earlier one is still pending. A message left
	// unacknowledged is redelivered on the next session.
	Ack(ctx context.Context, msg *QueuedMessage) error

	// Close releases the underlying queue connection.
	Close() error
}
