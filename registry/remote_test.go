package registry

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/relaywire/rpcconn/wire"
)

// proxyStub stands in for *proxy.Remote: Remote[T] is generic over the
// cached type and doesn't need the real proxy package to exercise the
// weak-reference/finalization machinery.
type proxyStub struct{ n int }

// TestRemoteGetReturnsCachedEntryWhileReachable covers spec §3 invariant 2
// ("the local side materializes at most one live proxy at a time; concurrent
// deserializations observing the same id that is still reachable return the
// cached proxy").
func TestRemoteGetReturnsCachedEntryWhileReachable(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRemote[proxyStub](nil)
	p := &proxyStub{n: 1}
	r.Store(7, p)

	got, ok := r.Get(7)
	if !ok || got != p {
		t.Fatalf("Get(7) = %v, %v; want the stored proxy, true", got, ok)
	}
	// Keep p reachable until after the assertion above.
	runtime.KeepAlive(p)
}

// TestRemoteFinalizationFiresReleaseOnce covers spec §4.2's finalization
// hook and §4.8's remote-proxy-entry live→dead transition: dropping every
// reference to a cached proxy and forcing a GC cycle must eventually invoke
// onDead exactly once and clear the cache entry (spec §8 scenario 8,
// "Finalization release").
func TestRemoteFinalizationFiresReleaseOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var deadCount atomic.Int32
	var deadID atomic.Uint64
	r := NewRemote[proxyStub](func(id wire.ID) {
		deadCount.Add(1)
		deadID.Store(uint64(id))
	})

	func() {
		p := &proxyStub{n: 1}
		r.Store(42, p)
		if _, ok := r.Get(42); !ok {
			t.Fatal("expected the cached proxy to be retrievable before it is dropped")
		}
		// p goes out of scope here with no remaining references.
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && deadCount.Load() == 0 {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}

	if got := deadCount.Load(); got != 1 {
		t.Fatalf("onDead fired %d times within the deadline, want exactly 1", got)
	}
	if wire.ID(deadID.Load()) != 42 {
		t.Fatalf("onDead fired for id %d, want 42", deadID.Load())
	}

	if _, ok := r.Get(42); ok {
		t.Fatal("expected the cache entry to be gone after finalization")
	}

	// Idempotent: the protocol tolerates a redundant release (spec §8
	// "Idempotent release"); Drop on an id finalization already removed must
	// not panic or invoke onDead again.
	r.Drop(42)
	if got := deadCount.Load(); got != 1 {
		t.Fatalf("onDead fired again after a redundant Drop: got %d, want 1", got)
	}
}

// TestRemoteDropIsIdempotentAndSkipsOnDead covers the explicit
// Connection.ReleaseRemote path (registry.Remote.Drop), which must not
// itself invoke onDead — the caller has already posted its own release.
func TestRemoteDropIsIdempotentAndSkipsOnDead(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var deadCount atomic.Int32
	r := NewRemote[proxyStub](func(wire.ID) { deadCount.Add(1) })

	p := &proxyStub{n: 1}
	r.Store(1, p)
	runtime.KeepAlive(p)

	r.Drop(1)
	r.Drop(1) // must not panic

	if _, ok := r.Get(1); ok {
		t.Fatal("object still retrievable after Drop")
	}
	if deadCount.Load() != 0 {
		t.Fatalf("onDead fired %d times after an explicit Drop, want 0", deadCount.Load())
	}
}

// TestRemoteLenReportsLiveEntries exercises the Len accessor
// Connection.updateSizeMetrics reads for the remote_proxy_cache_size gauge.
func TestRemoteLenReportsLiveEntries(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := NewRemote[proxyStub](nil)
	if r.Len() != 0 {
		t.Fatalf("Len() on an empty cache = %d, want 0", r.Len())
	}

	p1, p2 := &proxyStub{n: 1}, &proxyStub{n: 2}
	r.Store(1, p1)
	r.Store(2, p2)
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	runtime.KeepAlive(p1)
	runtime.KeepAlive(p2)

	r.Drop(1)
	if r.Len() != 1 {
		t.Fatalf("Len() after Drop = %d, want 1", r.Len())
	}
}
