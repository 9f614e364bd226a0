// Package telegram adapts Telegram Bot API webhook updates.
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"live-service/internal/adapter"
	"live-service/internal/engine"
	"live-service/internal/media"
)

const chatIDCommand = "get_chat_id"

var errBadSecret = errors.New("webhook secret mismatch")

type Adapter struct {
	secret string
	client *Client
	log    *slog.Logger
}

// New builds the adapter. secret is the webhook secret_token, see
// WebhookSecret.
func New(secret string, client *Client, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{secret: secret, client: client, log: logger.With("adapter", "telegram")}
}

func (a *Adapter) Name() string { return "telegram" }

// Verify compares the secret_token header with the configured secret.
func (a *Adapter) Verify(r *http.Request, _ []byte) error {
	got := r.Header.Get(SecretHeader)
	if a.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.secret)) != 1 {
		return errBadSecret
	}
	return nil
}

// Normalize maps message and channel_post to adds and their edited variants
// to changes. Telegram does not report deletions. Photos of an album arrive
// one message each; they share a media_group_id, which becomes the message
// id so the album lands in a single post.
func (a *Adapter) Normalize(_ context.Context, body []byte) (adapter.Outcome, error) {
	var u tgbotapi.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return adapter.Outcome{}, fmt.Errorf("%w: %v", adapter.ErrMalformed, err)
	}
	out := adapter.Outcome{DedupKey: strconv.Itoa(u.UpdateID)}

	kind := engine.KindAdd
	m := u.Message
	switch {
	case u.EditedMessage != nil:
		kind, m = engine.KindChange, u.EditedMessage
	case u.EditedChannelPost != nil:
		kind, m = engine.KindChange, u.EditedChannelPost
	case m == nil:
		m = u.ChannelPost
	}
	if m == nil {
		return out, nil
	}
	if m.Chat == nil {
		return out, fmt.Errorf("%w: message without chat", adapter.ErrMalformed)
	}

	messageID := strconv.Itoa(m.MessageID)
	if m.MediaGroupID != "" {
		messageID = m.MediaGroupID
		if kind == engine.KindAdd {
			kind = engine.KindAppend
		}
	}
	if kind == engine.KindAdd && m.IsCommand() {
		a.command(m)
		return out, nil
	}

	text, entities := m.Text, m.Entities
	if text == "" {
		text, entities = m.Caption, m.CaptionEntities
	}
	out.Events = []engine.Event{{
		Type:      kind,
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		MessageID: messageID,
		Text:      applyEntities(text, entities),
		Files:     a.photo(m.Photo),
	}}
	return out, nil
}

// command answers the bot commands operators use while setting up a page.
func (a *Adapter) command(m *tgbotapi.Message) {
	name := m.Command()
	if name != chatIDCommand || a.client == nil {
		return
	}
	if err := a.client.SendMessage(m.Chat.ID, strconv.FormatInt(m.Chat.ID, 10)); err != nil {
		a.log.Error("reply to command failed", "command", name, "error", err)
	}
}

// photo picks the largest size of a photo and resolves its download URL.
// Resolution failures drop the photo and keep the text.
func (a *Adapter) photo(sizes []tgbotapi.PhotoSize) []media.File {
	if len(sizes) == 0 || a.client == nil {
		return nil
	}
	p := sizes[len(sizes)-1]
	fp, err := a.client.FilePath(p.FileID)
	if err != nil {
		a.log.Warn("photo dropped", "file_id", p.FileID, "error", err)
		return nil
	}
	name := path.Base(fp)
	ext := strings.ToLower(path.Ext(name))
	mimetype := "image/" + strings.TrimPrefix(ext, ".")
	if ext == ".jpg" || ext == "" {
		mimetype = "image/jpeg"
	}
	return []media.File{{
		Name:     name,
		Title:    strings.TrimSuffix(name, path.Ext(name)),
		URL:      a.client.FileURL(fp),
		MimeType: mimetype,
		Width:    p.Width,
		Height:   p.Height,
		Private:  true,
	}}
}

// applyEntities renders text_link entities as "label (url)". Offsets count
// UTF-16 code units.
func applyEntities(text string, entities []tgbotapi.MessageEntity) string {
	units := utf16.Encode([]rune(text))
	for i := len(entities) - 1; i >= 0; i-- {
		e := entities[i]
		if e.Type != "text_link" || e.URL == "" {
			continue
		}
		start, end := e.Offset, e.Offset+e.Length
		if start < 0 || end > len(units) || start > end {
			continue
		}
		label := string(utf16.Decode(units[start:end]))
		link := utf16.Encode([]rune(label + " (" + e.URL + ")"))
		units = append(units[:start:start], append(link, units[end:]...)...)
	}
	return string(utf16.Decode(units))
}
