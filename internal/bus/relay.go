package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"live-service/internal/metrics"
)

const topicPrefix = "group_"

// Topic is the shared pub/sub topic for a channel.
func Topic(channelID string) string { return topicPrefix + channelID }

// Message is one payload received from a shared transport.
type Message struct {
	Topic   string
	Payload []byte
}

// Transport is a pub/sub system shared by every process of a deployment.
type Transport interface {
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Messages() <-chan Message
	Close() error
}

// RelayBus publishes through a shared transport and rebroadcasts what the
// transport delivers to the subscribers of this process. The process holds
// one upstream subscription per channel, taken with the first local
// subscriber and released with the last.
type RelayBus struct {
	mu   sync.Mutex
	subs *Registry
	t    Transport
	log  *slog.Logger
}

func NewRelayBus(t Transport, logger *slog.Logger) *RelayBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayBus{subs: NewRegistry(), t: t, log: logger}
}

func (b *RelayBus) Subscribe(ctx context.Context, channelID string, c Conn) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	added, first := b.subs.Add(channelID, c)
	if !added {
		return nil
	}
	if first {
		if err := b.t.Subscribe(ctx, Topic(channelID)); err != nil {
			b.subs.Remove(channelID, c)
			return fmt.Errorf("subscribe %s: %w", Topic(channelID), err)
		}
		b.log.Debug("upstream subscribed", "topic", Topic(channelID))
	}
	metrics.Subscribers.Inc()
	return nil
}

func (b *RelayBus) Unsubscribe(ctx context.Context, channelID string, c Conn) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed, last := b.subs.Remove(channelID, c)
	if !removed {
		return nil
	}
	metrics.Subscribers.Dec()
	if last {
		if err := b.t.Unsubscribe(ctx, Topic(channelID)); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", Topic(channelID), err)
		}
		b.log.Debug("upstream released", "topic", Topic(channelID))
	}
	return nil
}

func (b *RelayBus) Publish(ctx context.Context, channelID string, d *Delta) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	if err := b.t.Publish(ctx, Topic(channelID), payload); err != nil {
		return fmt.Errorf("publish %s: %w", Topic(channelID), err)
	}
	metrics.DeltasPublished.WithLabelValues("relay").Inc()
	return nil
}

func (b *RelayBus) Subscribers(channelID string) int { return b.subs.Count(channelID) }

// Run rebroadcasts transport messages to local subscribers, in the order the
// transport delivers them, until ctx is cancelled or the transport closes.
func (b *RelayBus) Run(ctx context.Context) error {
	msgs := b.t.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			channelID, found := strings.CutPrefix(m.Topic, topicPrefix)
			if !found {
				b.log.Warn("message on unexpected topic", "topic", m.Topic)
				continue
			}
			for _, c := range broadcast(b.subs, channelID, m.Payload) {
				b.log.Warn("closing slow subscriber", "channel_id", channelID)
				if err := b.Unsubscribe(ctx, channelID, c); err != nil {
					b.log.Error("release subscriber failed", "channel_id", channelID, "error", err)
				}
				_ = c.Close()
			}
		}
	}
}
