package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"live-service/internal/metrics"
)

// LocalBus fans deltas out to subscribers of this process only.
type LocalBus struct {
	subs *Registry
	log  *slog.Logger
}

func NewLocalBus(logger *slog.Logger) *LocalBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{subs: NewRegistry(), log: logger}
}

func (b *LocalBus) Subscribe(_ context.Context, channelID string, c Conn) error {
	if added, _ := b.subs.Add(channelID, c); added {
		metrics.Subscribers.Inc()
	}
	return nil
}

func (b *LocalBus) Unsubscribe(_ context.Context, channelID string, c Conn) error {
	if removed, _ := b.subs.Remove(channelID, c); removed {
		metrics.Subscribers.Dec()
	}
	return nil
}

func (b *LocalBus) Publish(ctx context.Context, channelID string, d *Delta) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	metrics.DeltasPublished.WithLabelValues("local").Inc()
	for _, c := range broadcast(b.subs, channelID, payload) {
		b.log.Warn("closing slow subscriber", "channel_id", channelID)
		_ = b.Unsubscribe(ctx, channelID, c)
		_ = c.Close()
	}
	return nil
}

func (b *LocalBus) Subscribers(channelID string) int { return b.subs.Count(channelID) }

// broadcast sends payload to every subscriber of channelID and returns the
// connections that could not take it.
func broadcast(subs *Registry, channelID string, payload []byte) []Conn {
	var dropped []Conn
	for _, c := range subs.Conns(channelID) {
		if err := c.Send(payload); err != nil {
			dropped = append(dropped, c)
		}
	}
	if len(dropped) > 0 {
		metrics.SlowConsumersClosed.Add(float64(len(dropped)))
	}
	return dropped
}
