package session

import (
	"errors"
	"sort"
	"sync"
)

// ErrAlreadyRunning is returned by Register when the session id already has
// a live process.
var ErrAlreadyRunning = errors.New("download already running")

// Registry maps a session id to the handle of its running process. One
// mutex guards the whole map; session counts are small. H is the handle
// type owned by the supervisor; it must be comparable so exit paths can
// remove only the handle they own.
type Registry[H comparable] struct {
	mu      sync.Mutex
	entries map[string]H
}

func NewRegistry[H comparable]() *Registry[H] {
	return &Registry[H]{
		entries: make(map[string]H),
	}
}

// Register records h for id, failing with ErrAlreadyRunning if id is taken.
func (r *Registry[H]) Register(id string, h H) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return ErrAlreadyRunning
	}
	r.entries[id] = h
	return nil
}

// Unregister drops the entry for id. It is a no-op if id is absent.
func (r *Registry[H]) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func (r *Registry[H]) Lookup(id string) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[id]
	return h, ok
}

// Take removes and returns the entry for id. Once taken, no other caller
// can obtain the handle from the registry.
func (r *Registry[H]) Take(id string) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return h, ok
}

// Remove deletes the entry for id only if it is still h. It reports whether
// h was removed, which is false when h was already taken or replaced.
func (r *Registry[H]) Remove(id string, h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.entries[id]
	if !ok || cur != h {
		return false
	}
	delete(r.entries, id)
	return true
}

func (r *Registry[H]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IDs returns the registered session ids in sorted order.
func (r *Registry[H]) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the current entries.
func (r *Registry[H]) Snapshot() map[string]H {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]H, len(r.entries))
	for id, h := range r.entries {
		out[id] = h
	}
	return out
}
