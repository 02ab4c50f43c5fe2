// Package demoroot provides the root object the rpcconn demo CLI exposes:
// a small object graph exercising direct calls, proxy and handle minting,
// callback invocation, and self-referential values (every method takes a
// context, so none is readable through a property get), grounded on
// the teacher's own "small object with a handful of named operations"
// shape (sdks/go/client.go's Evaluate/Check/Explain) rather than anything
// MCP-specific.
package demoroot

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/relaywire/rpcconn/markers"
	"github.com/relaywire/rpcconn/proxy"
)

// Root is the object `serve` passes to rpcconn.Expose.
type Root struct {
	log *slog.Logger

	nextCounterID atomic.Uint64
}

// New creates a Root that logs through log.
func New(log *slog.Logger) *Root {
	return &Root{log: log}
}

// Add performs arithmetic across the boundary (call action, no leading
// context needed on the peer but accepted here to match the dispatcher's
// context-injection convention).
func (r *Root) Add(ctx context.Context, a, b float64) (float64, error) {
	return a + b, nil
}

// Greet exercises a plain string round trip.
func (r *Root) Greet(ctx context.Context, name string) (string, error) {
	if name == "" {
		name = "stranger"
	}
	return fmt.Sprintf("hello, %s", name), nil
}

// Fail always throws, exercising error-shape propagation (spec §4.7's
// RemoteError reconstruction on the caller's side).
func (r *Root) Fail(ctx context.Context, reason string) (any, error) {
	return nil, fmt.Errorf("demoroot: requested failure: %s", reason)
}

// Echo returns v unchanged, exercising cycle- and shared-subgraph-safe
// serialization when the caller passes a self-referential or repeated-
// reference argument (only observable with rpcconn.WithNestedProxies, since
// Echo's argument is itself the top-level value under test).
func (r *Root) Echo(ctx context.Context, v any) (any, error) {
	return v, nil
}

// NewCounter mints a fresh Counter and returns it by reference (a full
// proxy, not a Handle): the caller gets a live remote proxy it can Call
// Increment/Value on.
func (r *Root) NewCounter(ctx context.Context) (markers.ProxyMarker, error) {
	id := r.nextCounterID.Add(1)
	return markers.Proxy(&Counter{id: id}), nil
}

// NewOpaqueToken mints an identity-only handle: the caller can pass it back
// later (e.g. to RedeemToken) but cannot call or read anything on it
// directly (spec §4.6 "Opaque handle").
func (r *Root) NewOpaqueToken(ctx context.Context) (markers.ProxyMarker, error) {
	return markers.HandleOf(&token{id: r.nextCounterID.Add(1)}), nil
}

// RedeemToken accepts a handle minted by NewOpaqueToken and reports its
// identity, demonstrating that an opaque handle still round-trips to the
// same Go value on the side that owns it (spec §3 invariant 3).
func (r *Root) RedeemToken(ctx context.Context, tok *token) (uint64, error) {
	return tok.id, nil
}

type token struct{ id uint64 }

// InvokeCallback calls the peer-owned callback cb with arg and returns its
// result, exercising the reverse direction of the call path: the object
// exposing Root is, for the duration of this one call, also the caller of a
// proxy the peer passed in.
func (r *Root) InvokeCallback(ctx context.Context, cb *proxy.Remote, arg any) (any, error) {
	if cb == nil {
		return nil, fmt.Errorf("demoroot: InvokeCallback requires a callback argument")
	}
	return cb.Call(ctx, "", arg)
}

// Counter is minted by NewCounter and referenced by proxy thereafter.
type Counter struct {
	id    uint64
	value atomic.Int64
}

// Increment adds delta and returns the new value.
func (c *Counter) Increment(ctx context.Context, delta int64) (int64, error) {
	return c.value.Add(delta), nil
}

// Value reads the current count. It is reachable only as a call: getMember
// reads a method as a property only when it takes no parameters, and Value
// takes a context.
func (c *Counter) Value(ctx context.Context) (int64, error) {
	return c.value.Load(), nil
}

// ID reports this counter's identity, independent of the wire proxy id the
// registry assigns it.
func (c *Counter) ID(ctx context.Context) (uint64, error) {
	return c.id, nil
}
