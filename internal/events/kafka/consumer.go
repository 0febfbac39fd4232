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

// Consumer reads queued transactions from the relay topic. Offsets are
// committed explicitly per message: an uncommitted message is redelivered
// after a restart or rebalance, which is the queue's at-least-once contract.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a consumer group reader for the relay topic.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
	}
}

// Ensure Consumer implements portsrepo.TransactionConsumer
var _ portsrepo.TransactionConsumer = (*Consumer)(nil)

// Fetch blocks until the next queued transaction is delivered or ctx ends.
func (c *Consumer) Fetch(ctx context.Context) (*portsrepo.QueuedMessage, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch queued transaction: %v", apperrors.ErrInfrastructure, err)
	}

	var queued domain.QueuedTransaction
	if err := json.Unmarshal(msg.Value, &queued); err != nil {
		// An undecodable message can never become valid; commit it away so
		// it does not wedge the partition. Every earlier offset is already
		// committed because the caller never fetches past an unacknowledged
		// message, so this commit drops only the undecodable payload.
		if cerr := c.reader.CommitMessages(ctx, msg); cerr != nil {
			return nil, fmt.Errorf("%w: commit undecodable message at offset %d: %v", apperrors.ErrInfrastructure, msg.Offset, cerr)
		}
		return nil, fmt.Errorf("%w: unmarshal queued transaction at offset %d: %v", apperrors.ErrInfrastructure, msg.Offset, err)
	}

	return &portsrepo.QueuedMessage{Queued: queued, Raw: msg}, nil
}

// Ack commits the message's offset, removing it from future delivery.
func (c *Consumer) Ack(ctx context.Context, msg *portsrepo.QueuedMessage) error {
	raw, ok := msg.Raw.(kafka.Message)
	if !ok {
		return fmt.Errorf("%w: ack called with a foreign message token", apperrors.ErrInfrastructure)
	}
	if err := c.reader.CommitMessages(ctx, raw); err != nil {
		return fmt.Errorf("%w: commit offset %d: %v", apperrors.ErrInfrastructure, raw.Offset, err)
	}
	return nil
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
