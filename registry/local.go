// Package registry holds the two id-indexed tables a Connection maintains:
// a strong local registry for objects this side has exposed, and a weak
// remote proxy cache for objects the peer has exposed to this side
// (spec §2, §4.2).
package registry

import (
	"reflect"
	"sync"

	"github.com/relaywire/rpcconn/wire"
)

// Local is the strong registry: id -> object, object -> id. It guarantees
// that exposed targets remain reachable until the peer releases them,
// matching internal/service/upstream_manager.go's mutex-guarded
// map[string]*upstreamConnection bookkeeping style.
type Local struct {
	mu     sync.Mutex
	nextID func() wire.ID
	byID   map[wire.ID]any
	byKey  map[any]wire.ID
}

// NewLocal creates a Local registry. ids are minted by calling nextID.
func NewLocal(nextID func() wire.ID) *Local {
	return &Local{
		nextID: nextID,
		byID:   make(map[wire.ID]any),
		byKey:  make(map[any]wire.ID),
	}
}

// IdentityKey returns a comparable key standing in for v's reference
// identity, and whether one could be derived. Pointers, funcs, chans, maps
// and slices are keyed by their underlying data pointer — the closest Go
// analogue of the source ecosystem's object-reference identity. Other
// comparable values (strings, numbers, a bare struct of comparable fields)
// are keyed by the value itself, so equal values share one key. Values with
// no comparable form (e.g. a struct holding a map or slice) yield no key, and
// Register gives them a fresh id every time.
//
// Exported so the engine's serializer can reuse the same notion of identity
// for its traversal-local visited map (cycle and shared-subgraph detection,
// spec §3 invariants 3-4) instead of inventing a second one.
func IdentityKey(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Chan, reflect.Map, reflect.Slice, reflect.UnsafePointer, reflect.Func:
		if rv.IsNil() {
			return nil, false
		}
		return rv.Pointer(), true
	default:
		if rv.Type().Comparable() {
			return v, true
		}
		return nil, false
	}
}

// Register returns the id for o, allocating one on first sight (spec §3
// invariant 1: "exactly one id identifies it for the lifetime of that
// registration; re-serialization yields the same id").
func (l *Local) Register(o any) wire.ID {
	l.mu.Lock()
	defer l.mu.Unlock()

	if key, ok := IdentityKey(o); ok {
		if id, exists := l.byKey[key]; exists {
			return id
		}
		id := l.nextID()
		l.byID[id] = o
		l.byKey[key] = id
		return id
	}

	id := l.nextID()
	l.byID[id] = o
	return id
}

// RegisterAt registers o under an explicit id (used for the handshake root
// object, which must occupy id 0).
func (l *Local) RegisterAt(id wire.ID, o any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[id] = o
	if key, ok := IdentityKey(o); ok {
		l.byKey[key] = id
	}
}

// Get retrieves the object registered under id, if any.
func (l *Local) Get(id wire.ID) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byID[id]
	return o, ok
}

// Release removes the registration for id in both directions. Idempotent:
// releasing an id twice, or an id that was never registered, is a no-op
// (spec §8 "Idempotent release").
func (l *Local) Release(id wire.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.byID[id]
	if !ok {
		return
	}
	delete(l.byID, id)
	if key, ok := IdentityKey(o); ok {
		delete(l.byKey, key)
	}
}

// ReleaseAll drains the registry, e.g. on Connection close.
func (l *Local) ReleaseAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID = make(map[wire.ID]any)
	l.byKey = make(map[any]wire.ID)
}

// Len reports the number of locally registered objects (for metrics).
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}
