package registry

import (
	"runtime"
	"sync"
	"weak"

	"github.com/relaywire/rpcconn/wire"
)

// Remote is the weak remote-proxy cache: id -> weak reference to the proxy
// object this side holds for a peer-owned target (spec §2, §4.2). It is
// built on the Go 1.24+ standard-library weak.Pointer and runtime.AddCleanup
// primitives — the idiomatic current-Go expression of "a weakly-keyed
// associative structure" plus "a finalization hook scheduled at proxy
// construction time" (spec §4.2), superseding the older runtime.SetFinalizer
// idiom.
type Remote[T any] struct {
	mu     sync.Mutex
	byID   map[wire.ID]weak.Pointer[T]
	onDead func(id wire.ID)
}

// NewRemote creates a Remote cache. onDead is invoked (from a GC-driven
// cleanup goroutine, not the dispatcher goroutine) after an entry's proxy
// has been finalized; callers use it to post the `release` message.
func NewRemote[T any](onDead func(id wire.ID)) *Remote[T] {
	return &Remote[T]{
		byID:   make(map[wire.ID]weak.Pointer[T]),
		onDead: onDead,
	}
}

// Get derefs the cached weak pointer for id. A cleared weak reference
// behaves as absent (spec §4.2 "Deref semantics").
func (r *Remote[T]) Get(id wire.ID) (*T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	p := wp.Value()
	if p == nil {
		delete(r.byID, id)
		return nil, false
	}
	return p, true
}

// Store caches p under id and arranges for the cache entry to be dropped
// (and onDead invoked) once p becomes unreachable.
func (r *Remote[T]) Store(id wire.ID, p *T) {
	r.mu.Lock()
	r.byID[id] = weak.Make(p)
	r.mu.Unlock()
	runtime.AddCleanup(p, r.cleanup, id)
}

func (r *Remote[T]) cleanup(id wire.ID) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
	if r.onDead != nil {
		r.onDead(id)
	}
}

// Drop removes id unconditionally, without invoking onDead. Used by an
// explicit release (Connection.ReleaseRemote), which posts its own release
// message. The cleanup registered by Store stays armed and still invokes
// onDead once the proxy becomes unreachable.
func (r *Remote[T]) Drop(id wire.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Len reports the number of (possibly stale) cache entries, for metrics.
func (r *Remote[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
