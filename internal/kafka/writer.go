package kafka

import (
	"context"
	"strings"
	"time"

	k "github.com/segmentio/kafka-go"
)

type Writer struct {
	w *k.Writer
}

// NewWriter returns a synchronous writer keyed by channel so one channel's
// events stay on one partition, in order.
func NewWriter(bootstrap, topic string) *Writer {
	w := &k.Writer{
		Addr:                   k.TCP(strings.Split(bootstrap, ",")...),
		Topic:                  topic,
		Balancer:               &k.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           k.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Writer{w: w}
}

func (w *Writer) Close() error { return w.w.Close() }

func (w *Writer) Publish(ctx context.Context, key string, value []byte) error {
	return w.w.WriteMessages(ctx, k.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
}
