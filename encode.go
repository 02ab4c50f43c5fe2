package rpcconn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/relaywire/rpcconn/markers"
	"github.com/relaywire/rpcconn/proxy"
	"github.com/relaywire/rpcconn/registry"
	"github.com/relaywire/rpcconn/wire"
)

// encodeState is one toWire traversal's mutable state (spec §4.3): a cache
// from an input value's reference identity to its already-produced wire
// form, the set of container identities already assigned a node sequence
// number (for cycle/shared-subgraph back-references, see wire.NodeValue),
// and the out-parameter transfer list.
type encodeState struct {
	conn       *Connection
	cache      map[any]wire.Value
	nodeSeq    map[any]uint32
	seqCounter uint32
	transfers  *[]wire.Transferable
}

// encodeTop starts a fresh toWire traversal for one value position (a call
// argument, a call result, or a handler sideband payload). transfers may be
// nil when the caller doesn't care about the transfer list (e.g. handler
// messages, which have no Transferable concept on this engine's wire).
func (c *Connection) encodeTop(v any, path string, transfers *[]wire.Transferable) (wire.Value, error) {
	if transfers == nil {
		var discard []wire.Transferable
		transfers = &discard
	}
	st := &encodeState{
		conn:      c,
		cache:     make(map[any]wire.Value),
		nodeSeq:   make(map[any]uint32),
		transfers: transfers,
	}
	return st.encode(v, path)
}

// encode implements spec §4.3's ordered checks.
func (s *encodeState) encode(v any, path string) (wire.Value, error) {
	c := s.conn
	nonEmpty := path != ""
	restrictive := c.cfg.debug && !c.cfg.nestedProxies

	if v == nil {
		return wire.RawValue(json.RawMessage("null")), nil
	}

	key, hasKey := registry.IdentityKey(v)
	if hasKey {
		if cached, ok := s.cache[key]; ok {
			return cached, nil
		}
	}

	switch tv := v.(type) {
	case markers.TransferMarker:
		if restrictive && nonEmpty {
			return wire.Value{}, &NonCloneableError{ValueType: "transfer", Path: path}
		}
		*s.transfers = append(*s.transfers, tv.Value())
		raw, err := json.Marshal(tv.Value())
		if err != nil {
			return wire.Value{}, fmt.Errorf("rpcconn: encode transferable at %q: %w", path, err)
		}
		val := wire.RawValue(raw)
		s.remember(key, hasKey, val)
		return val, nil

	case markers.ProxyMarker:
		if restrictive && nonEmpty {
			return wire.Value{}, &NonCloneableError{ValueType: "proxy", Path: path}
		}
		id := c.local.Register(tv.Value())
		c.updateSizeMetrics()
		val := wire.ProxyRef(id, tv.Opaque())
		s.remember(key, hasKey, val)
		return val, nil

	case markers.Func:
		if restrictive && nonEmpty {
			return wire.Value{}, &NonCloneableError{ValueType: "function", Path: path}
		}
		id := c.local.Register(any(tv))
		c.updateSizeMetrics()
		val := wire.ProxyRef(id, false)
		s.remember(key, hasKey, val)
		return val, nil
	}

	// Step 6: a value already known as a peer-owned proxy carries its
	// original id back unchanged (spec §3 invariant 3).
	if r, ok := v.(*proxy.Remote); ok {
		val := wire.ProxyRef(r.ID(), r.Opaque())
		s.remember(key, hasKey, val)
		return val, nil
	}

	// Special serializer: proxy-property (spec §4.3 "Special serializer").
	if pr, ok := v.(*proxy.PropertyRef); ok {
		if path == "" {
			return wire.PropertyRef(pr.TargetProxyID(), pr.PropertyName()), nil
		}
		if restrictive {
			return wire.Value{}, &NonCloneableError{ValueType: "proxy", Path: path}
		}
		return wire.Value{}, fmt.Errorf("rpcconn: proxy property value used at non-top-level path %q; await or call it first", path)
	}

	// Step 7: then-able.
	if aw, ok := v.(markers.Awaiter); ok {
		if restrictive && nonEmpty {
			return wire.Value{}, &NonCloneableError{ValueType: "promise", Path: path}
		}
		id := c.allocID()
		val := wire.PromiseRef(id)
		s.remember(key, hasKey, val)
		c.attachAwaiter(id, aw)
		return val, nil
	}

	// Step 8: registered handler.
	if h := c.handlers.MatchForEncode(v); h != nil {
		ctx := &encodeContext{state: s, path: path}
		shape, err := h.ToWire(v, ctx)
		if err != nil {
			return wire.Value{}, fmt.Errorf("rpcconn: handler %s ToWire: %w", h.WireType(), err)
		}
		payload, err := json.Marshal(shape)
		if err != nil {
			return wire.Value{}, fmt.Errorf("rpcconn: marshal handler %s payload: %w", h.WireType(), err)
		}
		val := wire.HandlerRef(h.WireType(), payload)
		s.remember(key, hasKey, val)
		return val, nil
	}

	// Step 9: recurse into containers only when traversal mode permits.
	if hasKey && isRecursable(v) && (c.cfg.nestedProxies || c.cfg.debug) {
		return s.encodeContainer(v, path, key)
	}

	// Step 10: raw passthrough.
	raw, err := json.Marshal(v)
	if err != nil {
		return wire.Value{}, fmt.Errorf("rpcconn: encode value at %q: %w", path, err)
	}
	val := wire.RawValue(raw)
	s.remember(key, hasKey, val)
	return val, nil
}

func (s *encodeState) remember(key any, hasKey bool, val wire.Value) {
	if hasKey {
		s.cache[key] = val
	}
}

// attachAwaiter spawns the continuation that awaits aw and posts the
// matching resolve/reject (spec §4.3 step 7). There is no caller-supplied
// context at this layer — per spec §5, cancellation is not part of the
// protocol — so the wait is unbounded; Connection.Close does not cancel it,
// matching "closing does not cancel the peer's work".
func (c *Connection) attachAwaiter(id wire.ID, aw markers.Awaiter) {
	go func() {
		value, err := aw.Await(context.Background())
		if err != nil {
			if err := c.send(wire.RejectEnvelope(id, shapeFromError(err)), nil); err != nil {
				c.log.Warn("rpcconn: failed to send reject", slog.String("conn", c.id), slog.Any("err", err))
			}
			return
		}
		var transfers []wire.Transferable
		wireVal, encErr := c.encodeTop(value, "", &transfers)
		if encErr != nil {
			if err := c.send(wire.RejectEnvelope(id, shapeFromError(encErr)), nil); err != nil {
				c.log.Warn("rpcconn: failed to send reject after encode failure", slog.String("conn", c.id), slog.Any("err", err))
			}
			return
		}
		if err := c.send(wire.ResolveEnvelope(id, wireVal), transfers); err != nil {
			c.log.Warn("rpcconn: failed to send resolve", slog.String("conn", c.id), slog.Any("err", err))
		}
	}()
}

// isRecursable reports whether v is a plain container the serializer may
// recurse into in nested/debug mode: a slice/array, a string-keyed map, a
// struct, or a pointer to one of those (spec §4.3 step 9's "arrays and own
// enumerable string-keyed properties of plain objects", rendered over Go's
// structural types rather than a single dynamic object kind).
func isRecursable(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return true
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	case reflect.Struct:
		return true
	default:
		return false
	}
}

// encodeContainer recurses into a slice/array/map/struct, assigning it a
// traversal-local node sequence number before descending so a cycle back to
// this same container emits a wire.RefSeq instead of recursing forever
// (spec §3 invariant 4, §9 "Cycles in polymorphic serialization").
func (s *encodeState) encodeContainer(v any, path string, key any) (wire.Value, error) {
	seq := s.seqCounter
	s.seqCounter++
	s.nodeSeq[key] = seq
	s.cache[key] = wire.RefSeq(seq)

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]wire.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			child, err := s.encode(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return wire.Value{}, err
			}
			items[i] = child
		}
		return wire.NodeArray(seq, items), nil

	case reflect.Map:
		fields := make(map[string]wire.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			child, err := s.encode(iter.Value().Interface(), joinPath(path, k))
			if err != nil {
				return wire.Value{}, err
			}
			fields[k] = child
		}
		return wire.NodeObject(seq, fields), nil

	case reflect.Struct:
		fields := make(map[string]wire.Value)
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, skip := jsonFieldName(f)
			if skip {
				continue
			}
			child, err := s.encode(rv.Field(i).Interface(), joinPath(path, name))
			if err != nil {
				return wire.Value{}, err
			}
			fields[name] = child
		}
		return wire.NodeObject(seq, fields), nil

	default:
		return wire.Value{}, fmt.Errorf("rpcconn: unsupported container kind %s at %q", rv.Kind(), path)
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// jsonFieldName mirrors encoding/json's exported-field tag rules closely
// enough for this engine's plain-object recursion: a `json:"-"` tag skips
// the field, a named tag overrides the Go field name.
func jsonFieldName(f reflect.StructField) (name string, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	if tag == "" {
		return f.Name, false
	}
	parts := strings.SplitN(tag, ",", 2)
	if parts[0] == "" {
		return f.Name, false
	}
	return parts[0], false
}

// encodeContext implements handler.EncodeContext, recursively serializing a
// handler's nested children while preserving path and sharing this
// traversal's visited state.
type encodeContext struct {
	state *encodeState
	path  string
}

func (e *encodeContext) ToWire(child any, key string) (wire.Value, error) {
	return e.state.encode(child, joinPath(e.path, key))
}
