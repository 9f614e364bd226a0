// Package kafka carries normalized message events over a Kafka topic.
package kafka

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type Handler func(ctx context.Context, topic string, key, value []byte) error

type Consumer struct {
	reader *kafka.Reader
	handle Handler
	log    *slog.Logger
}

func NewConsumer(brokers, groupID, topic string, h Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        strings.Split(brokers, ","),
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        500 * time.Millisecond,
			CommitInterval: time.Second,
		}),
		handle: h,
		log:    logger.With("component", "kafka"),
	}
}

// Run fetches and handles messages until ctx ends. Every fetched message is
// committed whether or not the handler succeeded.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		_ = c.reader.Close()
	}()

	cfg := c.reader.Config()
	c.log.Info("consumer started", "group", cfg.GroupID, "topic", cfg.Topic, "brokers", cfg.Brokers)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer shutting down")
				return nil
			}
			c.log.Error("fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if c.handle != nil {
			if e := c.handle(ctx, m.Topic, m.Key, m.Value); e != nil {
				c.log.Warn("handler failed", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", e)
			}
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Error("commit failed", "error", err)
		}
	}
}
