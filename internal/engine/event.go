package engine

import (
	"errors"
	"fmt"

	"live-service/internal/media"
)

type Kind string

const (
	KindAdd    Kind = "add"
	KindChange Kind = "change"
	KindDelete Kind = "delete"
	// KindAppend adds content to the post of an existing message, or creates
	// the post when the message is new. Platforms that split one logical
	// message into several deliveries use it.
	KindAppend Kind = "append"
)

// Event is a normalized inbound message event, whatever platform it came from.
type Event struct {
	Type      Kind         `json:"type"`
	ChannelID string       `json:"channelId"`
	MessageID string       `json:"messageId"`
	Text      string       `json:"text,omitempty"`
	Files     []media.File `json:"files,omitempty"`
}

var ErrInvalidEvent = errors.New("invalid event")

func (e Event) Validate() error {
	switch e.Type {
	case KindAdd, KindChange, KindDelete, KindAppend:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if e.ChannelID == "" {
		return fmt.Errorf("%w: channelId is required", ErrInvalidEvent)
	}
	if e.MessageID == "" {
		return fmt.Errorf("%w: messageId is required", ErrInvalidEvent)
	}
	return nil
}
