package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/skalice/ledger-engine/internal/apperrors"
	"github.com/skalice/ledger-engine/internal/core/domain"
	portsrepo "github.com/skalice/ledger-engine/internal/core/ports/repositories"
)

// Publisher writes queued transactions to the relay topic. Messages are
// keyed by account ID so all transactions for one account land on the same
// partition and keep their enqueue order.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Ensure Publisher implements portsrepo.TransactionPublisher
var _ portsrepo.TransactionPublisher = (*Publisher)(nil)

// Publish appends a queued transaction to the relay topic.
func (p *Publisher) Publish(ctx context.Context, queued domain.QueuedTransaction) error {
	data, err := json.Marshal(queued)
	if err != nil {
		return fmt.Errorf("%w: marshal queued transaction %s: %v", apperrors.ErrInfrastructure, queued.TransactionID, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(queued.AccountID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("%w: publish queued transaction %s: %v", apperrors.ErrInfrastructure, queued.TransactionID, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
