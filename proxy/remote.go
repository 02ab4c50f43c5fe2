// Package proxy implements the borrower-side stand-in for a peer-owned
// target: a lazy object that multiplexes method calls and property access
// over its owning Connection (spec §4.6).
package proxy

import (
	"context"
	"fmt"

	"github.com/relaywire/rpcconn/wire"
)

// Caller is the callback surface a Remote needs from its owning Connection.
// Defined here (rather than imported) so this package has no dependency on
// the engine package that constructs Remote values — the engine implements
// Caller and passes itself in, breaking what would otherwise be an import
// cycle.
type Caller interface {
	Invoke(ctx context.Context, target wire.ID, action wire.Action, method string, args []any) (any, error)
	ReleaseRemote(id wire.ID)
}

// Remote is the borrower-side proxy for a peer-owned target. A Remote
// constructed with opaque=true is the spec's "Handle": it carries identity
// only and rejects every member operation (Call/Get/Set) with
// errOpaqueTarget, matching §4.6's "Opaque handle" (identity-only, exposes
// no member access).
type Remote struct {
	caller Caller
	id     wire.ID
	opaque bool
}

// New constructs a Remote for id. Callers are expected to go through the
// remote proxy cache (registry.Remote) rather than calling New directly,
// so that spec §3 invariant 2 ("at most one live proxy at a time") holds.
func New(caller Caller, id wire.ID, opaque bool) *Remote {
	return &Remote{caller: caller, id: id, opaque: opaque}
}

// ID returns the peer-side id this proxy addresses.
func (r *Remote) ID() wire.ID { return r.id }

// Opaque reports whether this is the opaque (Handle) variant.
func (r *Remote) Opaque() bool { return r.opaque }

// errOpaqueTarget is returned as is when a member operation is attempted on
// an opaque Handle.
var errOpaqueTarget = fmt.Errorf("proxy: target is an opaque handle, no member access")

// Call issues a `call` Envelope naming method (or no method, applying the
// proxy itself as callable when method is "").
func (r *Remote) Call(ctx context.Context, method string, args ...any) (any, error) {
	if r.opaque {
		return nil, errOpaqueTarget
	}
	return r.caller.Invoke(ctx, r.id, wire.ActionCall, method, args)
}

// Get reads property synchronously from the peer's perspective (the call
// itself is asynchronous; Get blocks the calling goroutine on the round
// trip, matching spec §4.6's callable/then-able proxy-property texture
// reduced to Go's synchronous-call idiom).
func (r *Remote) Get(ctx context.Context, property string) (any, error) {
	if r.opaque {
		return nil, errOpaqueTarget
	}
	if property == "then" {
		// A Remote must never be confused with a native then-able
		// (spec §4.6): "then" is not forwarded as a property read.
		return nil, fmt.Errorf("proxy: %q is not a readable property", property)
	}
	return r.caller.Invoke(ctx, r.id, wire.ActionGet, property, nil)
}

// Set writes property on the peer target.
func (r *Remote) Set(ctx context.Context, property string, value any) error {
	if r.opaque {
		return errOpaqueTarget
	}
	_, err := r.caller.Invoke(ctx, r.id, wire.ActionSet, property, []any{value})
	return err
}

// Property returns a lazy handle that is both callable (method invocation)
// and awaitable (property read) — the Go rendering of spec §4.6's
// "callable + then-able" proxy-property value. It carries the
// {TargetProxyID, PropertyName} brand: a PropertyRef sent back unexecuted
// as a top-level value (a call argument or a result) is encoded as a wire
// `property` value; nested inside a container it is rejected.
func (r *Remote) Property(name string) *PropertyRef {
	return &PropertyRef{remote: r, name: name}
}

// Release tells the owning Connection this side no longer needs id. Mainly
// useful for forcing an eager release in tests; ordinarily the registry's
// finalization hook does this automatically.
func (r *Remote) Release() {
	r.caller.ReleaseRemote(r.id)
}

// PropertyRef is a not-yet-performed property access on a Remote: calling
// it dispatches a method call, awaiting it dispatches a property read.
type PropertyRef struct {
	remote *Remote
	name   string
}

// TargetProxyID and PropertyName expose the brand carried by a PropertyRef,
// so the serializer can encode it as a wire `property` value if it is
// passed back unexecuted (spec §3 "property" variant, §4.3 special rule).
func (p *PropertyRef) TargetProxyID() wire.ID { return p.remote.id }
func (p *PropertyRef) PropertyName() string   { return p.name }

// Call invokes the named method.
func (p *PropertyRef) Call(ctx context.Context, args ...any) (any, error) {
	return p.remote.Call(ctx, p.name, args...)
}

// Await performs the property read.
func (p *PropertyRef) Await(ctx context.Context) (any, error) {
	return p.remote.Get(ctx, p.name)
}
