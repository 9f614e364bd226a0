// Package polling answers viewers that pull updates instead of holding a
// websocket: interval polling (handshake, cheap probe, fetch) and long
// polling (handshake, then a request held open until something changes).
package polling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"live-service/internal/metrics"
	"live-service/internal/page"
	"live-service/internal/render"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultTimeout  = 60 * time.Second
	recheckTick     = 500 * time.Millisecond

	TimeoutMessage = "Timeout duration reached."
)

var ErrBadTimestamp = errors.New("invalid last_update_ts")

// Timestamp converts a watermark to the float seconds used on the wire.
func Timestamp(t time.Time) float64 { return float64(t.UnixMicro()) / 1e6 }

// ParseTimestamp reverses Timestamp exactly for any microsecond watermark.
func ParseTimestamp(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}
	return time.UnixMicro(int64(math.Round(f * 1e6))).UTC(), nil
}

type Handshake struct {
	LivePosts           []string `json:"livePosts"`
	LastUpdateTimestamp float64  `json:"lastUpdateTimestamp"`
	PollingInterval     int64    `json:"pollingInterval,omitempty"`
}

type Updates struct {
	Updates             map[string]string `json:"updates"`
	CurrentPosts        []string          `json:"currentPosts"`
	LastUpdateTimestamp float64           `json:"lastUpdateTimestamp"`
}

type TimeoutReached struct {
	TimeOutReached string `json:"timeOutReached"`
}

// Responder computes polling responses from page state.
type Responder struct {
	pages    *page.Registry
	renderer render.Renderer
	interval time.Duration
	timeout  time.Duration
	tick     time.Duration
	log      *slog.Logger
}

func NewResponder(pages *page.Registry, renderer render.Renderer, interval, timeout time.Duration, logger *slog.Logger) *Responder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		pages:    pages,
		renderer: renderer,
		interval: interval,
		timeout:  timeout,
		tick:     recheckTick,
		log:      logger,
	}
}

func (r *Responder) Timeout() time.Duration { return r.timeout }

// Start seeds a client with the current post ids and watermark. The interval
// is included for interval polling clients only.
func (r *Responder) Start(channelID string, withInterval bool) (*Handshake, error) {
	p, err := r.pages.Get(channelID)
	if err != nil {
		return nil, err
	}
	posts, watermark := p.VisiblePosts()
	ids := make([]string, len(posts))
	for i, lp := range posts {
		ids[i] = lp.ID
	}
	h := &Handshake{LivePosts: ids, LastUpdateTimestamp: Timestamp(watermark)}
	if withInterval {
		h.PollingInterval = r.interval.Milliseconds()
	}
	return h, nil
}

// Probe returns the current watermark of a channel.
func (r *Responder) Probe(channelID string) (time.Time, error) {
	p, err := r.pages.Get(channelID)
	if err != nil {
		return time.Time{}, err
	}
	return p.LastUpdatedAt(), nil
}

// Fetch returns what changed on a channel after since.
func (r *Responder) Fetch(channelID string, since time.Time) (*Updates, error) {
	p, err := r.pages.Get(channelID)
	if err != nil {
		return nil, err
	}
	return r.updates(p, since)
}

func (r *Responder) updates(p *page.Page, since time.Time) (*Updates, error) {
	changed, current, watermark := p.UpdatesSince(since)
	out := &Updates{
		Updates:             make(map[string]string, len(changed)),
		CurrentPosts:        current,
		LastUpdateTimestamp: Timestamp(watermark),
	}
	if out.CurrentPosts == nil {
		out.CurrentPosts = []string{}
	}
	for id, lp := range changed {
		html, err := r.renderer.Render(lp)
		if err != nil {
			return nil, err
		}
		out.Updates[id] = html
	}
	return out, nil
}

// LongPoll blocks until the channel's watermark passes since, the timeout
// elapses, or ctx ends. It returns either *Updates or *TimeoutReached.
func (r *Responder) LongPoll(ctx context.Context, channelID string, since time.Time) (any, error) {
	p, err := r.pages.Get(channelID)
	if err != nil {
		return nil, err
	}
	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(r.tick)
	defer tick.Stop()

	for {
		changed := p.Changed()
		if p.LastUpdatedAt().After(since) {
			metrics.LongPolls.WithLabelValues("updates").Inc()
			return r.updates(p, since)
		}
		select {
		case <-ctx.Done():
			metrics.LongPolls.WithLabelValues("cancelled").Inc()
			return nil, ctx.Err()
		case <-deadline.C:
			metrics.LongPolls.WithLabelValues("timeout").Inc()
			return &TimeoutReached{TimeOutReached: TimeoutMessage}, nil
		case <-changed:
		case <-tick.C:
		}
	}
}
