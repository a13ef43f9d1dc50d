// Package consumer runs a Kafka consumer-group read loop and hands each message to a handler.
package consumer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"bizlens/backend/internal/platform/logger"
)

const handleTimeout = 30 * time.Second

// Handler processes one message. A returned error is logged and the message is not retried.
type Handler func(ctx context.Context, msg kafka.Message) error

// messageReader is the subset of *kafka.Reader used here.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads one topic in a consumer group.
type Consumer struct {
	reader  messageReader
	topic   string
	handler Handler
	lggr    logger.Logger
}

// New returns a consumer for topic in group. Offsets are committed once per second.
func New(brokers []string, topic, groupID string, handler Handler, lggr logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return &Consumer{reader: reader, topic: topic, handler: handler, lggr: lggr.With("topic", topic)}
}

// Run reads until ctx is cancelled, then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.lggr.Warnw("close reader", "err", err)
		}
	}()
	c.lggr.Infow("consuming")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.lggr.Infow("consumer stopped")
				return nil
			}
			c.lggr.Warnw("kafka read error", "err", err)
			continue
		}
		hctx, cancel := context.WithTimeout(ctx, handleTimeout)
		if err := c.handler(hctx, msg); err != nil {
			c.lggr.Errorw("handle message", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
		cancel()
	}
}
