package rpcconn

import (
	"encoding/json"
	"fmt"

	"github.com/relaywire/rpcconn/proxy"
	"github.com/relaywire/rpcconn/wire"
)

// decodeState is one fromWire traversal's mutable state (spec §4.4): a
// table from a container's traversal-local node sequence number to the
// already-allocated (and possibly still-filling) Go container, so a
// wire.RefSeq resolves to the same map/slice instance instead of a copy —
// the decode-side half of the Node/Ref cycle mechanism encode.go builds.
type decodeState struct {
	conn  *Connection
	nodes map[uint32]any
}

// decodeTop starts a fresh fromWire traversal for one value position (a
// call argument, a return/resolve value, or a handler sideband payload).
func (c *Connection) decodeTop(v wire.Value) (any, error) {
	st := &decodeState{conn: c, nodes: make(map[uint32]any)}
	return st.decode(v)
}

// decodeArgs decodes a call's argument list through a single shared
// decodeState, so a reference shared across two arguments (or a cycle
// spanning them) resolves to one Go value on both sides (spec §4.5 call
// handling step 2: "Deserialize all arguments using a shared visited map so
// that references within one payload preserve identity").
func (c *Connection) decodeArgs(vs []wire.Value) ([]any, error) {
	st := &decodeState{conn: c, nodes: make(map[uint32]any)}
	out := make([]any, len(vs))
	for i, v := range vs {
		val, err := st.decode(v)
		if err != nil {
			return nil, fmt.Errorf("rpcconn: decode args[%d]: %w", i, err)
		}
		out[i] = val
	}
	return out, nil
}

// decode implements spec §4.4's ordered checks.
func (s *decodeState) decode(v wire.Value) (any, error) {
	switch v.Tag {
	case "":
		if v.HandlerType != "" {
			return s.decodeHandler(v)
		}
		if v.Raw == nil {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal(v.Raw, &out); err != nil {
			return nil, fmt.Errorf("rpcconn: decode raw value: %w", err)
		}
		return out, nil

	case wire.TagProxy:
		return s.decodeProxy(v.Proxy)

	case wire.TagPromise:
		return s.decodePromise(v.Promise)

	case wire.TagProperty:
		return s.decodeProperty(v.Property)

	case wire.TagThrown:
		return nil, remoteErrorFromShape(v.Thrown.Error)

	case wire.TagNode:
		return s.decodeNode(v.Node)

	case wire.TagRef:
		container, ok := s.nodes[v.Ref.Seq]
		if !ok {
			return nil, fmt.Errorf("rpcconn: ref to unknown node sequence %d", v.Ref.Seq)
		}
		return container, nil

	default:
		return nil, fmt.Errorf("rpcconn: unrecognized wire tag %q", v.Tag)
	}
}

// decodeProxy implements spec §4.4 step 3: an id naming a local object
// reconstitutes that object directly (round-tripping a proxy the peer sent
// back is a no-op, spec §3 invariant 3); otherwise it resolves to the
// cached live remote proxy, or constructs and caches a fresh one.
func (s *decodeState) decodeProxy(pv *wire.ProxyValue) (any, error) {
	c := s.conn
	if obj, ok := c.local.Get(pv.ID); ok {
		return obj, nil
	}
	if p, ok := c.remoteCache.Get(pv.ID); ok {
		return p, nil
	}
	p := proxy.New(c, pv.ID, pv.Opaque)
	c.remoteCache.Store(pv.ID, p)
	c.updateSizeMetrics()
	return p, nil
}

// decodePromise implements spec §4.4 step 4: register a deferred under the
// wire-promise's id and hand back the placeholder.
func (s *decodeState) decodePromise(pv *wire.PromiseValue) (any, error) {
	ch := s.conn.pendingPromises.register(pv.ID)
	return newFuture(ch), nil
}

// decodeProperty resolves a `property` wire value by reading the named
// property off the identified local object synchronously (spec §4.4,
// "property is resolved by looking up the target in the local registry and
// reading the named property synchronously").
func (s *decodeState) decodeProperty(pv *wire.PropertyValue) (any, error) {
	obj, ok := s.conn.local.Get(pv.TargetProxyID)
	if !ok {
		return nil, &ReferenceError{ID: pv.TargetProxyID}
	}
	return getMember(obj, pv.Property)
}

// decodeNode implements the decode-side half of the Node/Ref mechanism:
// allocate the Go container and register it under its sequence number
// before filling it, so a cyclic or shared reference to this same node
// resolves to the same instance (spec §3 invariant 4, §9).
func (s *decodeState) decodeNode(nv *wire.NodeValue) (any, error) {
	switch nv.Kind {
	case "array":
		arr := make([]any, len(nv.Array))
		s.nodes[nv.Seq] = arr
		for i, child := range nv.Array {
			val, err := s.decode(child)
			if err != nil {
				return nil, err
			}
			arr[i] = val
		}
		return arr, nil

	case "object":
		obj := make(map[string]any, len(nv.Object))
		s.nodes[nv.Seq] = obj
		for k, child := range nv.Object {
			val, err := s.decode(child)
			if err != nil {
				return nil, err
			}
			obj[k] = val
		}
		return obj, nil

	default:
		return nil, fmt.Errorf("rpcconn: unknown node kind %q", nv.Kind)
	}
}

// decodeHandler implements spec §4.4 step 5.
func (s *decodeState) decodeHandler(v wire.Value) (any, error) {
	h := s.conn.handlers.ByWireType(v.HandlerType)
	if h == nil {
		return nil, fmt.Errorf("rpcconn: no handler registered for wire type %q", v.HandlerType)
	}
	var shape any
	if v.HandlerPayload != nil {
		if err := json.Unmarshal(v.HandlerPayload, &shape); err != nil {
			return nil, fmt.Errorf("rpcconn: unmarshal handler %s payload: %w", v.HandlerType, err)
		}
	}
	ctx := &decodeContext{state: s}
	return h.FromWire(shape, ctx)
}

// decodeContext implements handler.DecodeContext, sharing this traversal's
// node table with a handler's nested FromWire calls.
type decodeContext struct {
	state *decodeState
}

func (d *decodeContext) FromWire(child wire.Value) (any, error) {
	return d.state.decode(child)
}
