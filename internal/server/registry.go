package server

import (
	"slices"
	"sync"
)

// Registry maps each online username to its live connection. It is the
// single source of truth for whether a user is online. A later registration
// for the same username replaces the earlier one without notifying it.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Register associates username with c and returns the handle it displaced,
// if any. A client that is already closed is not registered.
func (r *Registry) Register(username string, c *Client) (previous *Client, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.isClosed() {
		return nil, false
	}

	previous = r.clients[username]
	r.clients[username] = c
	return previous, true
}

// Lookup returns the live connection of username.
func (r *Registry) Lookup(username string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[username]
	return c, ok
}

// Unregister removes every username whose current handle is c and returns
// them. Usernames that have since been registered by another connection are
// left alone, so unregistering a superseded handle is a no-op.
func (r *Registry) Unregister(c *Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for username, current := range r.clients {
		if current == c {
			delete(r.clients, username)
			removed = append(removed, username)
		}
	}
	slices.Sort(removed)
	return removed
}

// Online returns the registered usernames in sorted order.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for username := range r.clients {
		names = append(names, username)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered usernames.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
