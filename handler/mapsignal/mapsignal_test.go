package mapsignal

import (
	"encoding/json"
	"testing"

	"github.com/relaywire/rpcconn/handler"
	"github.com/relaywire/rpcconn/wire"
)

// fakeCodec is a minimal handler.EncodeContext/handler.DecodeContext stand-in
// that round-trips plain JSON-able values without any of the engine's
// proxy/promise/cycle machinery — enough to unit test ToWire/FromWire's own
// snapshot shape in isolation from the rest of the package.
type fakeCodec struct{}

func (fakeCodec) ToWire(child any, _ string) (wire.Value, error) {
	raw, err := json.Marshal(child)
	if err != nil {
		return wire.Value{}, err
	}
	return wire.RawValue(raw), nil
}

func (fakeCodec) FromWire(child wire.Value) (any, error) {
	var v any
	if err := json.Unmarshal(child.Raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// recordingSender captures every payload pushed through SendMessage, playing
// the role of Connection.handlerSendMessage for tests that don't need a real
// Connection.
type recordingSender struct {
	sent []any
}

func (r *recordingSender) SendMessage(payload any) error {
	r.sent = append(r.sent, payload)
	return nil
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	owner := NewStore()
	if err := owner.Set("a", "hello"); err != nil {
		t.Fatalf("Set a: %v", err)
	}
	if err := owner.Set("b", float64(42)); err != nil {
		t.Fatalf("Set b: %v", err)
	}

	h := New()
	shape, err := h.ToWire(owner, fakeCodec{})
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}

	// Mimic encode.go step 8: the handler's returned shape is marshaled
	// directly, then decode.go's decodeHandler unmarshals it back into a
	// generic value before calling FromWire.
	raw, err := json.Marshal(shape)
	if err != nil {
		t.Fatalf("marshal shape: %v", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal generic: %v", err)
	}

	mirrorAny, err := h.FromWire(generic, fakeCodec{})
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	mirror, ok := mirrorAny.(*Store)
	if !ok {
		t.Fatalf("FromWire returned %T, want *Store", mirrorAny)
	}
	if !mirror.mirror {
		t.Fatal("mirrored Store has mirror=false")
	}

	if v, ok := mirror.Get("a"); !ok || v != "hello" {
		t.Fatalf("mirror[\"a\"] = %v, %v; want \"hello\", true", v, ok)
	}
	if v, ok := mirror.Get("b"); !ok || v != float64(42) {
		t.Fatalf("mirror[\"b\"] = %v, %v; want 42, true", v, ok)
	}

	if err := mirror.Set("a", "nope"); err == nil {
		t.Fatal("Set on a mirrored Store should fail")
	}
	if err := mirror.Delete("a"); err == nil {
		t.Fatal("Delete on a mirrored Store should fail")
	}
}

func TestStoreSetPushesSidebandUpdate(t *testing.T) {
	owner := NewStore()
	h := New()
	h.attach(owner)

	sender := &recordingSender{}
	h.Connect(sender)

	if err := owner.Set("x", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := owner.Delete("x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sender.sent))
	}
	setMsg, ok := sender.sent[0].(update)
	if !ok || setMsg.Op != opSet || setMsg.Key != "x" {
		t.Fatalf("first message = %#v, want a set update for key x", sender.sent[0])
	}
	delMsg, ok := sender.sent[1].(update)
	if !ok || delMsg.Op != opDelete || delMsg.Key != "x" {
		t.Fatalf("second message = %#v, want a delete update for key x", sender.sent[1])
	}
}

func TestHandlerOnMessageAppliesIncrementalUpdates(t *testing.T) {
	h := New()
	store := &Store{entries: map[string]any{"k": "old"}, mirror: true}
	h.attach(store)

	h.OnMessage(map[string]any{"op": "set", "key": "k", "value": "new"}, nil)
	if v, ok := store.Get("k"); !ok || v != "new" {
		t.Fatalf("after set: got %v, %v; want new, true", v, ok)
	}

	h.OnMessage(map[string]any{"op": "delete", "key": "k"}, nil)
	if _, ok := store.Get("k"); ok {
		t.Fatal("after delete: key k still present")
	}
}

func TestHandlerCanHandle(t *testing.T) {
	h := New()
	if !h.CanHandle(NewStore()) {
		t.Fatal("CanHandle(*Store) = false, want true")
	}
	if h.CanHandle("not a store") {
		t.Fatal("CanHandle(string) = true, want false")
	}
}

var _ handler.Handler = (*Handler)(nil)
