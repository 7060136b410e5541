// Package subscription tracks the desired set of subscriptions so they can
// be replayed after a reconnect.
package subscription

import (
	"sync"

	"cryptoconnect/models"
)

// Entry is one desired subscription.
type Entry struct {
	Key     models.SubscriptionKey
	Request models.SubscribeRequest
}

// Registry is safe for concurrent use. All returns entries in the order
// they were first added.
type Registry struct {
	mu       sync.RWMutex
	entries  map[models.SubscriptionKey]int
	order    []Entry
	channels map[models.Channel]int
}

func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[models.SubscriptionKey]int),
		channels: make(map[models.Channel]int),
	}
}

// Add records req and reports whether it was new. Adding an equivalent
// request again is a no-op.
func (r *Registry) Add(req models.SubscribeRequest) bool {
	key := req.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return false
	}
	r.entries[key] = len(r.order)
	r.order = append(r.order, Entry{Key: key, Request: req.Clone()})
	r.channels[key.Channel]++
	return true
}

// Remove deletes key and reports whether it was present.
func (r *Registry) Remove(key models.SubscriptionKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.entries[key]
	if !ok {
		return false
	}
	delete(r.entries, key)
	if r.channels[key.Channel]--; r.channels[key.Channel] <= 0 {
		delete(r.channels, key.Channel)
	}
	r.order = append(r.order[:idx], r.order[idx+1:]...)
	for i := idx; i < len(r.order); i++ {
		r.entries[r.order[i].Key] = i
	}
	return true
}

func (r *Registry) Contains(key models.SubscriptionKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// HasChannel reports whether any entry subscribes to ch.
func (r *Registry) HasChannel(ch models.Channel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[ch] > 0
}

// Get returns the entry stored under key.
func (r *Registry) Get(key models.SubscriptionKey) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	e := r.order[idx]
	return Entry{Key: e.Key, Request: e.Request.Clone()}, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// All returns a snapshot; callers may range over it without holding locks.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.order))
	for i, e := range r.order {
		out[i] = Entry{Key: e.Key, Request: e.Request.Clone()}
	}
	return out
}
