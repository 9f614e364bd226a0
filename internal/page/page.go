package page

import (
	"sync"
	"time"

	"live-service/internal/livepost"
)

// Page is the live view attached to one upstream channel.
//
// Two locks guard a page. The write lock serializes event application for the
// channel end to end (parsing, mutation, publishing) so deltas leave in the
// order they were produced. The state lock guards the sequence and watermark;
// it is held only for the mutation itself so readers never wait on slow
// parsing such as image downloads.
type Page struct {
	ChannelID string

	writeMu sync.Mutex

	mu            sync.RWMutex
	posts         *livepost.Sequence
	lastUpdatedAt time.Time
	changed       chan struct{}
	now           func() time.Time
}

func New(channelID string, now func() time.Time) *Page {
	if now == nil {
		now = time.Now
	}
	return &Page{
		ChannelID:     channelID,
		posts:         livepost.NewSequence(),
		lastUpdatedAt: now().UTC().Truncate(time.Microsecond),
		changed:       make(chan struct{}),
		now:           now,
	}
}

// LockWriter acquires the per-channel writer lock and returns its release.
func (p *Page) LockWriter() func() {
	p.writeMu.Lock()
	return p.writeMu.Unlock
}

// Mutate runs fn under the state lock. fn receives the timestamp the
// watermark will take if fn reports a change; callers stamp CreatedAt and
// ModifiedAt with it so post times and the watermark agree.
func (p *Page) Mutate(fn func(seq *livepost.Sequence, at time.Time) (bool, error)) (time.Time, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	at := p.nextWatermark()
	changed, err := fn(p.posts, at)
	if err != nil || !changed {
		return p.lastUpdatedAt, false, err
	}
	p.lastUpdatedAt = at
	close(p.changed)
	p.changed = make(chan struct{})
	return at, true, nil
}

// nextWatermark is strictly greater than the current watermark even when the
// clock stalls or steps backwards.
func (p *Page) nextWatermark() time.Time {
	t := p.now().UTC().Truncate(time.Microsecond)
	if floor := p.lastUpdatedAt.Add(time.Microsecond); t.Before(floor) {
		return floor
	}
	return t
}

// Read runs fn under the shared state lock. fn must not retain the sequence.
func (p *Page) Read(fn func(seq *livepost.Sequence, lastUpdatedAt time.Time)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn(p.posts, p.lastUpdatedAt)
}

func (p *Page) LastUpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastUpdatedAt
}

// Changed returns a channel closed at the next mutation of the page.
func (p *Page) Changed() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.changed
}

// UpdatesSince collects visible posts created or edited after t, and the ids
// of every visible post so clients can detect removals by set difference.
func (p *Page) UpdatesSince(t time.Time) (map[string]*livepost.Post, []string, time.Time) {
	updates := make(map[string]*livepost.Post)
	var current []string
	var watermark time.Time
	p.Read(func(seq *livepost.Sequence, last time.Time) {
		watermark = last
		current = make([]string, 0, seq.Len())
		seq.Each(func(_ int, lp *livepost.Post) {
			if !lp.Visible {
				return
			}
			if lp.ChangedSince(t) {
				updates[lp.ID] = lp.Clone()
			}
			current = append(current, lp.ID)
		})
	})
	return updates, current, watermark
}

// VisiblePosts returns copies of the visible posts in order.
func (p *Page) VisiblePosts() ([]*livepost.Post, time.Time) {
	var out []*livepost.Post
	var watermark time.Time
	p.Read(func(seq *livepost.Sequence, last time.Time) {
		watermark = last
		seq.Each(func(_ int, lp *livepost.Post) {
			if lp.Visible {
				out = append(out, lp.Clone())
			}
		})
	})
	return out, watermark
}

// Snapshot is the persisted form of a page.
type Snapshot struct {
	ChannelID     string           `json:"channel_id"`
	LastUpdatedAt time.Time        `json:"last_updated_at"`
	Posts         []*livepost.Post `json:"posts"`
}

func (p *Page) Snapshot() Snapshot {
	var s Snapshot
	p.Read(func(seq *livepost.Sequence, last time.Time) {
		s = Snapshot{ChannelID: p.ChannelID, LastUpdatedAt: last, Posts: seq.Posts()}
	})
	return s
}

// FromSnapshot rebuilds a page from its persisted form. Posts the snapshot
// holds twice are dropped and reported in the error; the page is returned
// either way.
func FromSnapshot(s Snapshot, now func() time.Time) (*Page, error) {
	p := New(s.ChannelID, now)
	posts, err := livepost.RestoreSequence(s.Posts)
	p.posts = posts
	if !s.LastUpdatedAt.IsZero() {
		p.lastUpdatedAt = s.LastUpdatedAt.UTC().Truncate(time.Microsecond)
	}
	return p, err
}
