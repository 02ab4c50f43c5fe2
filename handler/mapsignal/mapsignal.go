// Package mapsignal implements a reference handler.Handler for an
// observable key/value store that mirrors its contents to the peer and
// pushes incremental updates over the handler sideband channel — the Go
// stand-in for spec §6/§9's "Map/Stream/Signal" pluggable-serializer
// example. Grounded on handler/registry.go's ordered-handler contract and
// spec §9's "stateful cross-boundary constructs... without complicating the
// core protocol" design note; there is no direct pack precedent for a
// publish-style sideband handler, so the update-notification shape follows
// the sideband contract (Connect/OnMessage/SendMessage) spec §6 defines.
package mapsignal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/relaywire/rpcconn/handler"
	"github.com/relaywire/rpcconn/wire"
)

// WireType is this handler's unique tag (spec §6 "wireType").
const WireType = "map"

// Store is an observable string-keyed map. A Store passed to Expose/Wrap as
// a call argument or result is serialized as a snapshot of its entries
// (handler.ToWire); a Store materialized on the receiving end
// (handler.FromWire) mirrors the owner's entries and is kept in sync by
// Set/Delete calls the owner performs afterward, delivered as `handler`
// sideband messages.
type Store struct {
	mu      sync.RWMutex
	entries map[string]any
	sender  handler.MessageContext // nil until this Store's Handler is Connect-ed
	mirror  bool                   // true if this Store was built by FromWire (a mirror, not the owner)
}

// NewStore creates an empty, owner-side Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]any)}
}

// Get reads key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Set writes key on the owner and, once connected, pushes the update to the
// peer's mirror. Calling Set on a mirror (the receiving side) is a local
// error: updates to a mirror only ever arrive from the owner.
func (s *Store) Set(key string, value any) error {
	if s.mirror {
		return fmt.Errorf("mapsignal: cannot Set on a mirrored Store; the owner is authoritative")
	}
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
	if s.sender != nil {
		return s.sender.SendMessage(update{Op: opSet, Key: key, Value: value})
	}
	return nil
}

// Delete removes key on the owner and pushes the deletion to the peer.
func (s *Store) Delete(key string) error {
	if s.mirror {
		return fmt.Errorf("mapsignal: cannot Delete on a mirrored Store; the owner is authoritative")
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	if s.sender != nil {
		return s.sender.SendMessage(update{Op: opDelete, Key: key})
	}
	return nil
}

// Snapshot returns a copy of all current entries.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

type op string

const (
	opSet    op = "set"
	opDelete op = "delete"
)

// update is the sideband payload pushed by Set/Delete (Value carries a plain
// Go value, encoded generically by Connection.encodeTop along with the rest
// of the envelope), and also the shape ToWire produces for a full snapshot
// (Op is empty; Entries carries the whole map, each already wire-encoded by
// ctx.ToWire since ToWire's return value is JSON-marshaled directly rather
// than run back through the generic encoder).
type update struct {
	Op      op                    `json:"op,omitempty"`
	Key     string                `json:"key,omitempty"`
	Value   any                   `json:"value,omitempty"`
	Entries map[string]wire.Value `json:"entries,omitempty"`
}

// Handler implements handler.Handler for *Store. One Handler instance backs
// exactly one Store per Connection: the first Store ToWire'd or FromWire'd
// on a given side becomes this handler's store for that Connection's
// lifetime, matching the "small observable key/value store" scope of this
// reference handler (it is not a general-purpose multi-map registry).
type Handler struct {
	handler.NopHandler
	mu    sync.Mutex
	store *Store
	ctx   handler.MessageContext
}

// New creates a mapsignal Handler with no store attached yet; ToWire/FromWire
// attach one on first use.
func New() *Handler {
	return &Handler{}
}

// WireType implements handler.Handler.
func (h *Handler) WireType() string { return WireType }

// CanHandle implements handler.Handler.
func (h *Handler) CanHandle(value any) bool {
	_, ok := value.(*Store)
	return ok
}

// ToWire implements handler.Handler: a *Store serializes as a full snapshot.
// Nested values go through ctx.ToWire so a Store entry that is itself a
// proxy, a handle, or another handler's shape round-trips correctly.
func (h *Handler) ToWire(value any, ctx handler.EncodeContext) (any, error) {
	store, ok := value.(*Store)
	if !ok {
		return nil, fmt.Errorf("mapsignal: ToWire called with %T, not *Store", value)
	}
	h.attach(store)

	snap := store.Snapshot()
	entries := make(map[string]wire.Value, len(snap))
	for k, v := range snap {
		wv, err := ctx.ToWire(v, k)
		if err != nil {
			return nil, err
		}
		entries[k] = wv
	}
	return update{Entries: entries}, nil
}

// FromWire implements handler.Handler: reconstructs a mirrored Store from a
// snapshot update. wireValue arrived through a plain json.Unmarshal into
// `any` (it was never run back through the generic decoder, since ToWire's
// shape is JSON-marshaled directly) so each entry surfaces as whatever
// generic shape its own JSON took — a tagged wireDoc map for a proxy/handle
// entry, or the bare scalar/object/array for a plain value. wireValueOf
// recovers the wire.Value either way.
func (h *Handler) FromWire(wireValue any, ctx handler.DecodeContext) (any, error) {
	m, ok := wireValue.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mapsignal: unexpected snapshot shape %T", wireValue)
	}
	rawEntries, _ := m["entries"].(map[string]any)

	store := &Store{entries: make(map[string]any, len(rawEntries)), mirror: true}
	for k, raw := range rawEntries {
		wv, err := wireValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("mapsignal: decode entry %q: %w", k, err)
		}
		v, err := ctx.FromWire(wv)
		if err != nil {
			return nil, fmt.Errorf("mapsignal: decode entry %q: %w", k, err)
		}
		store.entries[k] = v
	}
	h.attach(store)
	return store, nil
}

// Connect implements handler.Handler, saving the sideband sender so a later
// Store.Set/Delete can push an update.
func (h *Handler) Connect(ctx handler.MessageContext) {
	h.mu.Lock()
	h.ctx = ctx
	if h.store != nil {
		h.store.sender = ctx
	}
	h.mu.Unlock()
}

// OnMessage implements handler.Handler: applies an incremental update
// (set/delete) to this Connection's mirrored Store. Unlike FromWire's
// payload, this one arrived through the `handler` Envelope's own generic
// encode/decode round trip (Connection.handlerSendMessage/handleHandlerMessage),
// so u.Value is already a fully decoded Go value — no wireValueOf/ctx.FromWire
// needed.
func (h *Handler) OnMessage(payload any, _ handler.DecodeContext) {
	h.mu.Lock()
	store := h.store
	h.mu.Unlock()
	if store == nil {
		return
	}

	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	key, _ := m["key"].(string)
	switch opFrom(m["op"]) {
	case opSet:
		store.mu.Lock()
		store.entries[key] = m["value"]
		store.mu.Unlock()
	case opDelete:
		store.mu.Lock()
		delete(store.entries, key)
		store.mu.Unlock()
	}
}

func (h *Handler) attach(store *Store) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store == nil {
		h.store = store
		if h.ctx != nil {
			store.sender = h.ctx
		}
	}
}

// opFrom reads the "op" field of a decoded update map, tolerating a missing
// or unrecognized value (the snapshot shape has no "op" field at all).
func opFrom(v any) op {
	s, _ := v.(string)
	switch s {
	case string(opSet):
		return opSet
	case string(opDelete):
		return opDelete
	default:
		return ""
	}
}

// wireValueOf reconstructs a wire.Value from a generic value that came out
// of a plain json.Unmarshal into `any` (a tagged wireDoc surfaces as
// map[string]any with an "@rpc" key; anything else is raw data). Re-marshals
// and lets wire.Value.UnmarshalJSON do the real parsing rather than
// duplicating its tag-probing logic here.
func wireValueOf(v any) (wire.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return wire.Value{}, fmt.Errorf("mapsignal: remarshal wire value: %w", err)
	}
	var wv wire.Value
	if err := wv.UnmarshalJSON(raw); err != nil {
		return wire.Value{}, fmt.Errorf("mapsignal: parse wire value: %w", err)
	}
	return wv, nil
}
