// Package slack adapts the Slack Events API.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"live-service/internal/adapter"
	"live-service/internal/engine"
	"live-service/internal/media"
)

var errSignature = errors.New("signature mismatch")

// linkMarkup matches Slack's <url> and <url|label> link encoding.
var linkMarkup = regexp.MustCompile(`<(https?://[^|>\s]+)(?:\|([^>]*))?>`)

type Adapter struct {
	signingSecret string
	botToken      string
}

func New(signingSecret, botToken string) *Adapter {
	return &Adapter{signingSecret: signingSecret, botToken: botToken}
}

func (a *Adapter) Name() string { return "slack" }

// Verify checks the v0 request signature. Requests signed more than five
// minutes away from local time fail with slack.ErrExpiredTimestamp.
func (a *Adapter) Verify(r *http.Request, body []byte) error {
	sv, err := slack.NewSecretsVerifier(r.Header, a.signingSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("%w: %v", errSignature, err)
	}
	return nil
}

// fileSize carries the image dimensions slackevents.File leaves out.
type fileSize struct {
	OriginalW int `json:"original_w"`
	OriginalH int `json:"original_h"`
}

// envelope is read ahead of slackevents.ParseEvent, which fails on inner
// event types it has no mapping for and on callbacks without an event.
type envelope struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Event   *struct {
		Type string `json:"type"`
	} `json:"event"`
}

type sizes struct {
	Event struct {
		Files   []fileSize `json:"files"`
		Message *struct {
			Files []fileSize `json:"files"`
		} `json:"message"`
	} `json:"event"`
}

func (a *Adapter) Normalize(_ context.Context, body []byte) (adapter.Outcome, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return adapter.Outcome{}, fmt.Errorf("%w: %v", adapter.ErrMalformed, err)
	}
	if env.Type == slackevents.CallbackEvent {
		if env.Event == nil {
			return adapter.Outcome{}, fmt.Errorf("%w: event_callback without event", adapter.ErrMalformed)
		}
		if env.Event.Type != string(slackevents.Message) {
			return adapter.Outcome{DedupKey: env.EventID}, nil
		}
	}
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return adapter.Outcome{}, fmt.Errorf("%w: %v", adapter.ErrMalformed, err)
	}
	switch ev.Type {
	case slackevents.URLVerification:
		v, _ := ev.Data.(*slackevents.EventsAPIURLVerificationEvent)
		if v == nil || v.Challenge == "" {
			return adapter.Outcome{}, fmt.Errorf("%w: empty challenge", adapter.ErrMalformed)
		}
		return adapter.Outcome{Challenge: v.Challenge}, nil
	case slackevents.CallbackEvent:
	default:
		return adapter.Outcome{}, nil
	}
	out := adapter.Outcome{DedupKey: env.EventID}
	m, ok := ev.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return out, nil
	}
	var dims sizes
	_ = json.Unmarshal(body, &dims)

	switch m.SubType {
	case "", "file_share":
		out.Events = []engine.Event{{
			Type:      engine.KindAdd,
			ChannelID: m.Channel,
			MessageID: m.TimeStamp,
			Text:      NormalizeText(m.Text),
			Files:     a.files(m.Files, dims.Event.Files),
		}}
	case "message_changed":
		if m.Message == nil || m.PreviousMessage == nil {
			return out, fmt.Errorf("%w: message_changed without message bodies", adapter.ErrMalformed)
		}
		var sz []fileSize
		if dims.Event.Message != nil {
			sz = dims.Event.Message.Files
		}
		out.Events = []engine.Event{{
			Type:      engine.KindChange,
			ChannelID: m.Channel,
			MessageID: m.PreviousMessage.TimeStamp,
			Text:      NormalizeText(m.Message.Text),
			Files:     a.files(m.Message.Files, sz),
		}}
	case "message_deleted":
		id := m.DeletedTimeStamp
		if m.PreviousMessage != nil && m.PreviousMessage.TimeStamp != "" {
			id = m.PreviousMessage.TimeStamp
		}
		out.Events = []engine.Event{{
			Type:      engine.KindDelete,
			ChannelID: m.Channel,
			MessageID: id,
		}}
	}
	return out, nil
}

func (a *Adapter) files(in []slackevents.File, dims []fileSize) []media.File {
	if len(in) == 0 {
		return nil
	}
	out := make([]media.File, 0, len(in))
	for i, f := range in {
		mf := media.File{
			Name:     f.Name,
			Title:    f.Title,
			URL:      f.URLPrivate,
			MimeType: f.Mimetype,
			Private:  true,
		}
		if i < len(dims) {
			mf.Width, mf.Height = dims[i].OriginalW, dims[i].OriginalH
		}
		if a.botToken != "" {
			mf.Authorization = "Bearer " + a.botToken
		}
		out = append(out, mf)
	}
	return out
}

// NormalizeText rewrites Slack link markup into plain text. A line that is
// a single link becomes the bare URL so it can be detected as an embed;
// inline links become "label (url)".
func NormalizeText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := linkMarkup.FindStringSubmatchIndex(trimmed); m != nil && m[0] == 0 && m[1] == len(trimmed) {
			lines[i] = trimmed[m[2]:m[3]]
			continue
		}
		lines[i] = linkMarkup.ReplaceAllStringFunc(line, func(s string) string {
			sub := linkMarkup.FindStringSubmatch(s)
			url, label := sub[1], sub[2]
			if label == "" || label == url {
				return url
			}
			return label + " (" + url + ")"
		})
	}
	return strings.Join(lines, "\n")
}
