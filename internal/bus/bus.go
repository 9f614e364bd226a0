// Package bus fans render deltas out to the viewers subscribed to a channel.
package bus

import (
	"context"
	"errors"
)

// Delta is the change produced by one page mutation.
type Delta struct {
	Renders  map[string]string `json:"renders"`
	Removals []string          `json:"removals"`
}

func RenderDelta(postID, html string) *Delta {
	return &Delta{Renders: map[string]string{postID: html}, Removals: []string{}}
}

func RemovalDelta(postID string) *Delta {
	return &Delta{Renders: map[string]string{}, Removals: []string{postID}}
}

// Publisher delivers deltas for a channel. Implementations are injected into
// the engine at startup.
type Publisher interface {
	Publish(ctx context.Context, channelID string, d *Delta) error
}

// Bus is a Publisher viewers can subscribe to.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, channelID string, c Conn) error
	Unsubscribe(ctx context.Context, channelID string, c Conn) error
}

var ErrSlowConsumer = errors.New("subscriber send buffer full")

// Conn is one viewer connection. Send must not block; it returns
// ErrSlowConsumer when the connection cannot keep up.
type Conn interface {
	Send(payload []byte) error
	Close() error
}

// NopPublisher drops deltas. Polling-only deployments read the page state
// directly and need no push path.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, *Delta) error { return nil }
