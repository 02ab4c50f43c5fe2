package registry

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/relaywire/rpcconn/wire"
)

// counterID returns a wire.ID allocator suitable for NewLocal in tests,
// mirroring Connection.allocID's "monotonically increasing counter" shape
// (spec §3 "Id space") without pulling in the rest of Connection.
func counterID() func() wire.ID {
	var next wire.ID
	return func() wire.ID {
		id := next
		next++
		return id
	}
}

// TestLocalRegisterIsStableAcrossReregistration covers spec §3 invariant 1
// ("exactly one id identifies it for the lifetime of that registration;
// re-serialization yields the same id").
func TestLocalRegisterIsStableAcrossReregistration(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := NewLocal(counterID())
	obj := &struct{ n int }{n: 1}

	first := l.Register(obj)
	second := l.Register(obj)
	if first != second {
		t.Fatalf("re-registering the same object yielded different ids: %d, %d", first, second)
	}

	got, ok := l.Get(first)
	if !ok || got != any(obj) {
		t.Fatalf("Get(%d) = %v, %v; want the original object, true", first, got, ok)
	}
}

// TestLocalReleaseIsIdempotent covers spec §8 "Idempotent release".
func TestLocalReleaseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := NewLocal(counterID())
	obj := &struct{ n int }{}
	id := l.Register(obj)

	l.Release(id)
	if _, ok := l.Get(id); ok {
		t.Fatal("object still retrievable after Release")
	}

	// Releasing an already-released id, or one never registered, must be a
	// silent no-op rather than panicking.
	l.Release(id)
	l.Release(wire.ID(999))
}

// TestLocalRegisterAtFixesHandshakeID covers spec §3's "the exposing side's
// root target occupies that id unambiguously" rule that Expose relies on.
func TestLocalRegisterAtFixesHandshakeID(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := NewLocal(counterID())
	root := &struct{ name string }{name: "root"}
	l.RegisterAt(wire.HandshakeID, root)

	got, ok := l.Get(wire.HandshakeID)
	if !ok || got != any(root) {
		t.Fatalf("Get(HandshakeID) = %v, %v; want root, true", got, ok)
	}
	if l.Register(root) != wire.HandshakeID {
		t.Fatal("re-registering the RegisterAt'd object should still return HandshakeID")
	}
}

// TestLocalReleaseAllDrainsRegistry covers the Connection.Close path
// (local.ReleaseAll), which must leave the registry indistinguishable from a
// freshly constructed one.
func TestLocalReleaseAllDrainsRegistry(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	l := NewLocal(counterID())
	a := l.Register(&struct{ n int }{n: 1})
	b := l.Register(&struct{ n int }{n: 2})

	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}

	l.ReleaseAll()

	if l.Len() != 0 {
		t.Fatalf("Len() after ReleaseAll = %d, want 0", l.Len())
	}
	if _, ok := l.Get(a); ok {
		t.Fatal("object a still retrievable after ReleaseAll")
	}
	if _, ok := l.Get(b); ok {
		t.Fatal("object b still retrievable after ReleaseAll")
	}
}

// TestIdentityKeyDistinguishesPointersFromValues covers the reference-
// identity notion both Local.Register and the engine's encodeState cycle
// cache (encode.go) build on (spec §3 invariant 4).
func TestIdentityKeyDistinguishesPointersFromValues(t *testing.T) {
	type T struct{ n int }
	p1 := &T{n: 1}
	p2 := &T{n: 1}

	k1, ok1 := IdentityKey(p1)
	k2, ok2 := IdentityKey(p2)
	if !ok1 || !ok2 {
		t.Fatal("IdentityKey should derive a key for pointers")
	}
	if k1 == k2 {
		t.Fatal("two distinct pointers produced the same identity key")
	}

	k1Again, _ := IdentityKey(p1)
	if k1 != k1Again {
		t.Fatal("IdentityKey(p1) is not stable across calls")
	}

	if _, ok := IdentityKey(nil); ok {
		t.Fatal("IdentityKey(nil) should report no derivable identity")
	}
}
