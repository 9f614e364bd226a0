package bus

import "sync"

// Registry tracks which connections are subscribed to which channel.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]map[Conn]struct{})}
}

// Add subscribes c and reports whether it is the channel's first subscriber.
// Adding a connection twice is a no-op reporting added false.
func (r *Registry) Add(channelID string, c Conn) (added, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.channels[channelID]
	if !ok {
		set = make(map[Conn]struct{})
		r.channels[channelID] = set
	}
	if _, dup := set[c]; dup {
		return false, false
	}
	set[c] = struct{}{}
	return true, len(set) == 1
}

// Remove unsubscribes c. removed is false if c was not subscribed; last is
// true when the channel has no subscribers left.
func (r *Registry) Remove(channelID string, c Conn) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.channels[channelID]
	if !ok {
		return false, false
	}
	if _, ok := set[c]; !ok {
		return false, false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.channels, channelID)
		return true, true
	}
	return true, false
}

// Conns returns the current subscribers of a channel.
func (r *Registry) Conns(channelID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.channels[channelID]
	out := make([]Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Count(channelID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channelID])
}
