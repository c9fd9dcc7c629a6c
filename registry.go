package sage

import "sync"

// liveRegistry tracks in-flight DetachableControllers, keyed by the event
// key of their root event. Unlike the weak-pointer/ring-buffer registry
// this is adapted from, entries here are always explicitly removed on
// completion or abort rather than garbage-collected, because a detachable
// controller's lifetime is exactly the lifetime of its root event's
// dispatch: there is no possibility of a caller holding a stray reference
// past that point, so no scavenging pass is needed.
type liveRegistry struct {
	mu   sync.RWMutex
	data map[EventKey]*DetachableController
}

func newLiveRegistry() *liveRegistry {
	return &liveRegistry{data: make(map[EventKey]*DetachableController)}
}

// put registers c under its root event key.
func (r *liveRegistry) put(c *DetachableController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[c.rootKey] = c
}

// get returns the controller for key, or nil if none is live.
func (r *liveRegistry) get(key EventKey) *DetachableController {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data[key]
}

// remove deregisters the controller for key.
func (r *liveRegistry) remove(key EventKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
}

// snapshot returns every currently-live controller, for diagnostics
// (LiveDetachableEvents) and for Abort's teardown pass.
func (r *liveRegistry) snapshot() []*DetachableController {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DetachableController, 0, len(r.data))
	for _, c := range r.data {
		out = append(out, c)
	}
	return out
}

// len returns the number of live controllers.
func (r *liveRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
