package agent

import (
	"context"
	"sync"
)

// sessionRegistry caches at most one remote session handle per
// (user_id, session_id) key. Creation is serialized per key so two
// concurrent first-calls cannot both create a remote session; a failed
// creation leaves no entry behind, so the next call retries instead of
// reusing a broken handle.
//
// Lock discipline: mu guards the map and every entry's handle/ready
// fields; entry.mu only serializes the create callback. mu is never
// held while acquiring entry.mu.
type sessionRegistry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	mu     sync.Mutex
	handle string
	ready  bool
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{entries: make(map[string]*registryEntry)}
}

func registryKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// GetOrCreate returns the cached handle for key, invoking create under
// the per-key creation lock when no handle exists yet.
func (r *sessionRegistry) GetOrCreate(ctx context.Context, key string, create func(context.Context) (string, error)) (string, error) {
	for {
		r.mu.Lock()
		entry, ok := r.entries[key]
		if !ok {
			entry = &registryEntry{}
			r.entries[key] = entry
		}
		if entry.ready {
			handle := entry.handle
			r.mu.Unlock()
			return handle, nil
		}
		r.mu.Unlock()

		entry.mu.Lock()

		// While we waited for the creation lock the entry may have been
		// resolved, or dropped by a creator whose call failed. A dropped
		// entry is an orphan: writing a handle into it would never be
		// visible through the map, so start over on a fresh entry.
		r.mu.Lock()
		if r.entries[key] != entry {
			r.mu.Unlock()
			entry.mu.Unlock()
			continue
		}
		if entry.ready {
			handle := entry.handle
			r.mu.Unlock()
			entry.mu.Unlock()
			return handle, nil
		}
		r.mu.Unlock()

		handle, err := create(ctx)

		r.mu.Lock()
		if err != nil {
			// Drop the placeholder so the next caller retries creation.
			delete(r.entries, key)
			r.mu.Unlock()
			entry.mu.Unlock()
			return "", err
		}
		entry.handle = handle
		entry.ready = true
		r.mu.Unlock()
		entry.mu.Unlock()
		return handle, nil
	}
}

// Lookup returns the cached handle without creating one.
func (r *sessionRegistry) Lookup(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok || !entry.ready {
		return "", false
	}
	return entry.handle, true
}

// Len reports the number of ready handles in the cache.
func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.ready {
			n++
		}
	}
	return n
}
