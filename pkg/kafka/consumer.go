// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. Events travel as JSON; consumers hand raw messages to
// a MessageHandler.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
)

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	grouped bool
	logger  *slog.Logger
	handler MessageHandler
}

// NewConsumer creates a group consumer for topic. Each message is handled
// by one member of cfg.ConsumerGroup and committed after it succeeds.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return newConsumer(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	}, handler)
}

// NewBroadcastConsumer creates a consumer outside any group that tails
// partition 0 of topic from its end, so every process sees every message
// published after it starts. Offsets are not committed.
func NewBroadcastConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return newConsumer(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1e6,
	}, handler)
}

func newConsumer(rc kafka.ReaderConfig, handler MessageHandler) *Consumer {
	c := &Consumer{
		reader:  kafka.NewReader(rc),
		grouped: rc.GroupID != "",
		logger:  slog.Default().With("component", "kafka-consumer", "topic", rc.Topic),
		handler: handler,
	}
	if !c.grouped {
		// StartOffset only applies to group readers.
		if err := c.reader.SetOffset(kafka.LastOffset); err != nil {
			c.logger.Warn("setting start offset", "error", err)
		}
	}
	return c
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", "grouped", c.grouped)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return c.reader.Close()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if !c.grouped {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// DecodeJSON unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
