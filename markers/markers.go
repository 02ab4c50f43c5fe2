// Package markers defines the branded wrapper types an application uses to
// instruct the serializer (proxy/handle/transfer) and the Go stand-ins for
// "callable" and "then-able" values (spec §3, §4.3, §9).
package markers

import (
	"context"

	"github.com/relaywire/rpcconn/wire"
)

// Func is the Go rendering of a "callable" value (spec §4.3 step 5): any
// value of this type is unconditionally serialized as a wire-proxy, and
// invoking the resulting remote proxy dispatches back to this function.
type Func func(ctx context.Context, args []any) (any, error)

// Awaiter is the Go stand-in for a "then-able" (spec §4.3 step 7, §9). A
// locally-returned value implementing Awaiter is serialized as a
// wire-promise; Await is called from a dedicated goroutine and its result
// is posted back as a resolve/reject message.
type Awaiter interface {
	Await(ctx context.Context) (any, error)
}

// ProxyMarker brands a value so the serializer produces a wire-proxy for it
// instead of attempting to clone it (spec §4.3 step 4, §6).
type ProxyMarker struct {
	value  any
	opaque bool
}

// Proxy brands v so the serializer addresses it by reference (a full proxy
// on the receiving side: callable, gettable, settable).
func Proxy(v any) ProxyMarker { return ProxyMarker{value: v} }

// HandleOf brands v as the opaque variant of Proxy: the receiving side gets
// an identity-only handle with no member access (spec §4.6 "Opaque handle").
func HandleOf(v any) ProxyMarker { return ProxyMarker{value: v, opaque: true} }

// Opaque reports whether this marker was produced by HandleOf.
func (m ProxyMarker) Opaque() bool { return m.opaque }

// Value returns the wrapped value. Unwrapped value access.
func (m ProxyMarker) Value() any { return m.value }

// ValueOf is the inverse of Proxy/HandleOf: it unwraps the value branded by
// a marker the caller constructed with Proxy/HandleOf. When an id naming a
// local object comes back from the peer, the decoder hands back the bare
// object itself, not a marker, so no unwrapping is needed there.
func ValueOf(m ProxyMarker) any { return m.value }

// HandleValue is ValueOf specialized to the opaque case, matching the
// spec's naming (getHandleValue).
func HandleValue(m ProxyMarker) any { return m.value }

// TransferMarker brands a transport-level resource for inclusion in the
// outgoing transfer list (spec §4.3 step 3, §3 invariant 6).
type TransferMarker struct {
	value wire.Transferable
}

// Transfer brands t so the serializer moves it into the transfer list
// instead of copying it in place.
func Transfer(t wire.Transferable) TransferMarker { return TransferMarker{value: t} }

// Value returns the wrapped transferable resource.
func (m TransferMarker) Value() wire.Transferable { return m.value }
