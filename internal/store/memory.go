package store

import (
	"sync"
	"time"
)

// Cell is the in-memory implementation of [Store].
//
// Frames are copied on the way in and on the way out, so callers can reuse
// their buffers and readers can never observe a later write.
type Cell struct {
	mu        sync.RWMutex
	frame     []byte
	present   bool
	updatedAt time.Time
	now       func() time.Time
}

// NewCell creates an empty [Cell].
func NewCell() *Cell {
	return &Cell{now: time.Now}
}

// Set stores a copy of frame as the latest frame.
func (c *Cell) Set(frame []byte) {
	cp := append([]byte(nil), frame...)

	c.mu.Lock()
	c.frame = cp
	c.present = true
	c.updatedAt = c.now()
	c.mu.Unlock()
}

// Latest returns a copy of the latest frame.
func (c *Cell) Latest() ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.present {
		return nil, false
	}
	return append([]byte(nil), c.frame...), true
}

// UpdatedAt returns when [Cell.Set] was last called.
func (c *Cell) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Registry tracks live push subscribers keyed by [Subscriber.ID].
//
// Membership has no ordering. Iterate with [Registry.Snapshot]; the returned
// slice is a copy, so subscribers may join or leave while it is in use.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]Subscriber),
	}
}

// Add registers sub, replacing any subscriber with the same ID.
func (r *Registry) Add(sub Subscriber) {
	r.mu.Lock()
	r.subscribers[sub.ID()] = sub
	r.mu.Unlock()
}

// Remove unregisters the subscriber with the given ID. It reports whether a
// subscriber was removed; removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscribers[id]; !ok {
		return false
	}
	delete(r.subscribers, id)
	return true
}

// Snapshot returns the current subscribers.
func (r *Registry) Snapshot() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// CountByTransport returns the number of subscribers per transport.
func (r *Registry) CountByTransport() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, sub := range r.subscribers {
		counts[sub.Transport()]++
	}
	return counts
}
