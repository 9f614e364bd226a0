// Package webapp adapts the JSON events posted by the companion web
// messaging app.
package webapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"live-service/internal/adapter"
	"live-service/internal/engine"
	"live-service/internal/media"
	"live-service/internal/shared/httpx"
)

const (
	MessageCreated = 1
	MessageEdited  = 2
	MessageDeleted = 3
)

type Adapter struct {
	secret []byte
}

func New(jwtSecret string) *Adapter { return &Adapter{secret: []byte(jwtSecret)} }

func (a *Adapter) Name() string { return "webapp" }

// Verify requires an HS256 bearer token.
func (a *Adapter) Verify(r *http.Request, _ []byte) error {
	tok := httpx.BearerToken(r)
	if tok == "" {
		return httpx.ErrUnauthorized
	}
	_, err := httpx.ParseToken(a.secret, tok)
	return err
}

// Payload is the body of a webapp event.
type Payload struct {
	UpdateType int          `json:"update_type"`
	Channel    string       `json:"channel"`
	ID         MessageID    `json:"id"`
	Content    string       `json:"content"`
	Files      []media.File `json:"files,omitempty"`
}

// MessageID accepts both numeric and string ids.
type MessageID string

func (m *MessageID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*m = MessageID(n.String())
	return nil
}

func (a *Adapter) Normalize(_ context.Context, body []byte) (adapter.Outcome, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return adapter.Outcome{}, fmt.Errorf("%w: %v", adapter.ErrMalformed, err)
	}
	ev := engine.Event{ChannelID: p.Channel, MessageID: string(p.ID)}
	switch p.UpdateType {
	case MessageCreated:
		ev.Type, ev.Text, ev.Files = engine.KindAdd, p.Content, p.Files
	case MessageEdited:
		ev.Type, ev.Text, ev.Files = engine.KindChange, p.Content, p.Files
	case MessageDeleted:
		ev.Type = engine.KindDelete
	default:
		return adapter.Outcome{}, fmt.Errorf("%w: unknown update_type %d", adapter.ErrMalformed, p.UpdateType)
	}
	if err := ev.Validate(); err != nil {
		return adapter.Outcome{}, fmt.Errorf("%w: %v", adapter.ErrMalformed, err)
	}
	return adapter.Outcome{Events: []engine.Event{ev}}, nil
}
