package challenge

import (
	"sync"
	"time"
)

// Registry maps an open challenge to its scheduled eviction timer so the
// timer can be cancelled the instant the challenge resolves another way.
// Correctness never depends on cancellation winning: the Redis open-marker
// claim makes a stale firing a no-op, cancellation only saves the wakeup.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{timers: make(map[string]*time.Timer)}
}

// Schedule parks fn until d elapses and tracks the timer under key. A
// previous timer under the same key is cancelled first.
func (r *Registry) Schedule(key string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.timers[key]; ok {
		old.Stop()
	}
	r.timers[key] = time.AfterFunc(d, func() {
		r.remove(key)
		fn()
	})
}

// Cancel stops and forgets the timer for key. Returns whether a timer was
// still registered.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer, ok := r.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(r.timers, key)
	return true
}

// Len returns the number of scheduled evictions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Drain cancels every outstanding timer; used during shutdown.
func (r *Registry) Drain() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, timer := range r.timers {
		timer.Stop()
		delete(r.timers, key)
	}
}

func (r *Registry) remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.timers, key)
}
