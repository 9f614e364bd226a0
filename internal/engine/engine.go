// Package engine applies normalized message events to live pages and turns
// every mutation into a delta for the update bus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"live-service/internal/bus"
	"live-service/internal/livepost"
	"live-service/internal/media"
	"live-service/internal/metrics"
	"live-service/internal/page"
	"live-service/internal/render"
)

// ImageProcessor turns an upstream attachment into an image block payload.
type ImageProcessor interface {
	Process(ctx context.Context, f media.File) (livepost.Image, error)
}

// EmbedMatcher reports whether a whole line of text is an embeddable URL.
type EmbedMatcher interface {
	IsEmbed(text string) bool
}

type Engine struct {
	pages    *page.Registry
	renderer render.Renderer
	pub      bus.Publisher
	images   ImageProcessor
	embeds   EmbedMatcher
	log      *slog.Logger
	tracer   trace.Tracer
	newID    func() string
}

func New(
	pages *page.Registry,
	renderer render.Renderer,
	pub bus.Publisher,
	images ImageProcessor,
	embeds EmbedMatcher,
	logger *slog.Logger,
) *Engine {
	if pub == nil {
		pub = bus.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		pages:    pages,
		renderer: renderer,
		pub:      pub,
		images:   images,
		embeds:   embeds,
		log:      logger,
		tracer:   otel.Tracer("live-service/engine"),
		newID:    uuid.NewString,
	}
}

func (e *Engine) Pages() *page.Registry { return e.pages }

// Apply applies ev to its channel's page and returns the delta handed to the
// publisher. Events for unknown pages or unknown messages are dropped and
// return a nil delta without error; the page watermark does not move.
func (e *Engine) Apply(ctx context.Context, ev Event) (*bus.Delta, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Apply", trace.WithAttributes(
		attribute.String("live.event_type", string(ev.Type)),
		attribute.String("live.channel_id", ev.ChannelID),
		attribute.String("live.message_id", ev.MessageID),
	))
	defer span.End()

	d, err := e.apply(ctx, ev)
	result := "applied"
	switch {
	case err != nil:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case d == nil:
		result = "noop"
	}
	metrics.EventsApplied.WithLabelValues(string(ev.Type), result).Inc()
	return d, err
}

func (e *Engine) apply(ctx context.Context, ev Event) (*bus.Delta, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	p, unlock, err := e.pages.Acquire(ev.ChannelID)
	if errors.Is(err, page.ErrPageNotFound) {
		e.log.Debug("event for unknown page dropped", "channel_id", ev.ChannelID, "type", ev.Type)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer unlock()

	switch ev.Type {
	case KindAdd:
		return e.add(ctx, p, ev)
	case KindChange:
		return e.change(ctx, p, ev)
	case KindAppend:
		if !e.hasMessage(p, ev.MessageID) {
			return e.add(ctx, p, ev)
		}
		return e.append(ctx, p, ev)
	default:
		return e.remove(ctx, p, ev)
	}
}

func (e *Engine) add(ctx context.Context, p *page.Page, ev Event) (*bus.Delta, error) {
	post := &livepost.Post{
		ID:        e.newID(),
		MessageID: ev.MessageID,
		Visible:   true,
		Content:   e.parseContent(ctx, ev.Text, ev.Files),
	}
	_, _, err := p.Mutate(func(seq *livepost.Sequence, at time.Time) (bool, error) {
		post.CreatedAt = at
		if _, err := seq.Insert(post); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("add message %s to %s: %w", ev.MessageID, p.ChannelID, err)
	}
	return e.emitRender(ctx, p, post)
}

func (e *Engine) change(ctx context.Context, p *page.Page, ev Event) (*bus.Delta, error) {
	if !e.hasMessage(p, ev.MessageID) {
		e.log.Debug("change for unknown message dropped", "channel_id", p.ChannelID, "message_id", ev.MessageID)
		return nil, nil
	}
	blocks := e.parseContent(ctx, ev.Text, ev.Files)

	var post *livepost.Post
	_, changed, err := p.Mutate(func(seq *livepost.Sequence, at time.Time) (bool, error) {
		lp, err := seq.ByMessageID(ev.MessageID)
		if errors.Is(err, livepost.ErrPostNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		seq.ReplaceContent(lp, blocks)
		lp.ModifiedAt = &at
		post = lp
		return true, nil
	})
	if err != nil || !changed {
		return nil, err
	}
	if !post.Visible {
		e.pages.Persist(ctx, p)
		return nil, nil
	}
	return e.emitRender(ctx, p, post)
}

// append extends the content of an existing post. Existing blocks keep
// their ids.
func (e *Engine) append(ctx context.Context, p *page.Page, ev Event) (*bus.Delta, error) {
	blocks := e.parseContent(ctx, ev.Text, ev.Files)
	if len(blocks) == 0 {
		return nil, nil
	}

	var post *livepost.Post
	_, changed, err := p.Mutate(func(seq *livepost.Sequence, at time.Time) (bool, error) {
		lp, err := seq.ByMessageID(ev.MessageID)
		if errors.Is(err, livepost.ErrPostNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		content := append(lp.Content[:len(lp.Content):len(lp.Content)], blocks...)
		seq.ReplaceContent(lp, content)
		lp.ModifiedAt = &at
		post = lp
		return true, nil
	})
	if err != nil || !changed {
		return nil, err
	}
	if !post.Visible {
		e.pages.Persist(ctx, p)
		return nil, nil
	}
	return e.emitRender(ctx, p, post)
}

func (e *Engine) remove(ctx context.Context, p *page.Page, ev Event) (*bus.Delta, error) {
	var postID string
	_, changed, err := p.Mutate(func(seq *livepost.Sequence, _ time.Time) (bool, error) {
		id, err := seq.Remove(ev.MessageID)
		if errors.Is(err, livepost.ErrPostNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		postID = id
		return true, nil
	})
	if err != nil || !changed {
		if err == nil {
			e.log.Debug("delete for unknown message dropped", "channel_id", p.ChannelID, "message_id", ev.MessageID)
		}
		return nil, err
	}
	return e.emit(ctx, p, bus.RemovalDelta(postID)), nil
}

func (e *Engine) hasMessage(p *page.Page, messageID string) bool {
	found := false
	p.Read(func(seq *livepost.Sequence, _ time.Time) {
		found = seq.IndexOf(messageID) != livepost.NotFound
	})
	return found
}

// emitRender renders post and publishes it. The caller holds the page writer
// lock, so post cannot change underneath the renderer.
func (e *Engine) emitRender(ctx context.Context, p *page.Page, post *livepost.Post) (*bus.Delta, error) {
	html, err := e.renderer.Render(post)
	if err != nil {
		e.pages.Persist(ctx, p)
		return nil, err
	}
	return e.emit(ctx, p, bus.RenderDelta(post.ID, html)), nil
}

// emit persists the page and hands d to the publisher. Publish failures are
// logged; the page state already reflects the change and viewers resync
// through the polling handshake.
func (e *Engine) emit(ctx context.Context, p *page.Page, d *bus.Delta) *bus.Delta {
	e.pages.Persist(ctx, p)
	if err := e.pub.Publish(ctx, p.ChannelID, d); err != nil {
		e.log.Error("publish delta failed", "channel_id", p.ChannelID, "error", err)
	}
	return d
}

// GetPost returns a copy of a post looked up by its id.
func (e *Engine) GetPost(channelID, postID string) (*livepost.Post, error) {
	p, err := e.pages.Get(channelID)
	if err != nil {
		return nil, err
	}
	var out *livepost.Post
	p.Read(func(seq *livepost.Sequence, _ time.Time) {
		var lp *livepost.Post
		if lp, err = seq.ByID(postID); err == nil {
			out = lp.Clone()
		}
	})
	return out, err
}

// DeletePost removes a post on an operator's request. Unlike event
// application, a missing page or post is reported to the caller.
func (e *Engine) DeletePost(ctx context.Context, channelID, postID string) error {
	p, unlock, err := e.pages.Acquire(channelID)
	if err != nil {
		return err
	}
	defer unlock()

	_, _, err = p.Mutate(func(seq *livepost.Sequence, _ time.Time) (bool, error) {
		if _, err := seq.RemoveByID(postID); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	e.emit(ctx, p, bus.RemovalDelta(postID))
	return nil
}

// SetVisibility hides or shows a post. Hiding emits a removal, showing emits
// a render; setting the current state again changes nothing.
func (e *Engine) SetVisibility(ctx context.Context, channelID, postID string, visible bool) (*livepost.Post, error) {
	p, unlock, err := e.pages.Acquire(channelID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var post *livepost.Post
	_, changed, err := p.Mutate(func(seq *livepost.Sequence, at time.Time) (bool, error) {
		lp, err := seq.ByID(postID)
		if err != nil {
			return false, err
		}
		post = lp
		if lp.Visible == visible {
			return false, nil
		}
		lp.Visible = visible
		lp.ModifiedAt = &at
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		if visible {
			if _, err := e.emitRender(ctx, p, post); err != nil {
				return nil, err
			}
		} else {
			e.emit(ctx, p, bus.RemovalDelta(postID))
		}
	}
	return post.Clone(), nil
}
