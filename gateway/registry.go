package gateway

import "sync"

// Registry tracks which connections belong to which channels for one gateway
// instance. It is plain instance state, not module-level state, so multiple
// gateways can run in one process.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[*Conn]struct{}
	conns    map[*Conn]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[*Conn]struct{}),
		conns:    make(map[*Conn]map[string]struct{}),
	}
}

// Add joins a connection to a channel.
func (r *Registry) Add(channelKey string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channels[channelKey] == nil {
		r.channels[channelKey] = make(map[*Conn]struct{})
	}
	r.channels[channelKey][c] = struct{}{}

	if r.conns[c] == nil {
		r.conns[c] = make(map[string]struct{})
	}
	r.conns[c][channelKey] = struct{}{}
}

// Remove detaches a connection from one channel.
func (r *Registry) Remove(channelKey string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.remove(channelKey, c)
}

func (r *Registry) remove(channelKey string, c *Conn) {
	if set, ok := r.channels[channelKey]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.channels, channelKey)
		}
	}
	if set, ok := r.conns[c]; ok {
		delete(set, channelKey)
		if len(set) == 0 {
			delete(r.conns, c)
		}
	}
}

// RemoveConn detaches a connection from every channel and returns the
// channel keys it had joined.
func (r *Registry) RemoveConn(c *Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.conns[c]))
	for key := range r.conns[c] {
		keys = append(keys, key)
	}
	for _, key := range keys {
		r.remove(key, c)
	}
	return keys
}

// Members returns the connections currently joined to a channel.
func (r *Registry) Members(channelKey string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Conn, 0, len(r.channels[channelKey]))
	for c := range r.channels[channelKey] {
		members = append(members, c)
	}
	return members
}

// Joined reports whether the connection is a member of the channel.
func (r *Registry) Joined(channelKey string, c *Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.channels[channelKey][c]
	return ok
}
