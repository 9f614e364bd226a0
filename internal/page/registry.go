package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	ErrPageNotFound = errors.New("page not found")
	ErrPageExists   = errors.New("page already exists")
)

// Repository persists page snapshots so a restarted process can recover its
// pages. Implementations live under internal/storage.
type Repository interface {
	Save(ctx context.Context, s Snapshot) error
	Delete(ctx context.Context, channelID string) error
	LoadAll(ctx context.Context) ([]Snapshot, error)
}

// NopRepository keeps nothing; pages live only in memory.
type NopRepository struct{}

func (NopRepository) Save(context.Context, Snapshot) error        { return nil }
func (NopRepository) Delete(context.Context, string) error        { return nil }
func (NopRepository) LoadAll(context.Context) ([]Snapshot, error) { return nil, nil }

// Registry maps channel ids to pages.
type Registry struct {
	mu    sync.RWMutex
	pages map[string]*Page
	repo  Repository
	log   *slog.Logger
	now   func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

func NewRegistry(repo Repository, logger *slog.Logger, opts ...Option) *Registry {
	if repo == nil {
		repo = NopRepository{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{pages: make(map[string]*Page), repo: repo, log: logger, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Restore loads every persisted page into the registry.
func (r *Registry) Restore(ctx context.Context) error {
	snaps, err := r.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load pages: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range snaps {
		p, err := FromSnapshot(s, r.now)
		if err != nil {
			r.log.Warn("snapshot restored with dropped posts", "channel_id", s.ChannelID, "error", err)
		}
		r.pages[s.ChannelID] = p
	}
	r.log.Info("pages restored", "count", len(snaps))
	return nil
}

func (r *Registry) Create(ctx context.Context, channelID string) (*Page, error) {
	if channelID == "" {
		return nil, errors.New("channel id is required")
	}
	r.mu.Lock()
	if _, ok := r.pages[channelID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPageExists, channelID)
	}
	p := New(channelID, r.now)
	r.pages[channelID] = p
	r.mu.Unlock()

	if err := r.repo.Save(ctx, p.Snapshot()); err != nil {
		r.log.Error("save page failed", "channel_id", channelID, "error", err)
	}
	return p, nil
}

func (r *Registry) Get(channelID string) (*Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, channelID)
	}
	return p, nil
}

// Acquire returns the page for channelID with its writer lock held. The
// page is still registered when Acquire returns; the caller must release.
func (r *Registry) Acquire(channelID string) (*Page, func(), error) {
	p, err := r.Get(channelID)
	if err != nil {
		return nil, nil, err
	}
	unlock := p.LockWriter()
	if !r.owns(p) {
		unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrPageNotFound, channelID)
	}
	return p, unlock, nil
}

// Delete waits for the page's in-flight writer, then unregisters the page
// and drops its snapshot.
func (r *Registry) Delete(ctx context.Context, channelID string) error {
	p, unlock, err := r.Acquire(channelID)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	delete(r.pages, channelID)
	r.mu.Unlock()

	if err := r.repo.Delete(ctx, channelID); err != nil {
		return fmt.Errorf("delete page %s: %w", p.ChannelID, err)
	}
	return nil
}

func (r *Registry) owns(p *Page) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pages[p.ChannelID] == p
}

// List returns the channel ids of all pages, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.pages))
	for id := range r.pages {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Persist writes the page snapshot. Callers hold the page writer lock. A page
// that is no longer registered is not written. Failures are logged, the
// in-memory page stays authoritative.
func (r *Registry) Persist(ctx context.Context, p *Page) {
	if !r.owns(p) {
		r.log.Debug("snapshot of unregistered page skipped", "channel_id", p.ChannelID)
		return
	}
	if err := r.repo.Save(ctx, p.Snapshot()); err != nil {
		r.log.Error("save page failed", "channel_id", p.ChannelID, "error", err)
	}
}
