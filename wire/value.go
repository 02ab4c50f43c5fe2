package wire

import (
	"encoding/json"
	"fmt"
)

// Value is a wire-safe representation of one value position: either a
// tagged variant (Proxy, Promise, Property, Thrown, or a handler-produced
// shape) or raw data that round-trips through the transport's own codec.
type Value struct {
	// Tag is empty for raw (untagged) data.
	Tag Tag
	// HandlerType names a handler's WireType for a handler-produced shape;
	// Tag is left empty in that case.
	HandlerType string

	Proxy    *ProxyValue
	Promise  *PromiseValue
	Property *PropertyValue
	Thrown   *ThrownValue
	Node     *NodeValue
	Ref      *RefValue

	// HandlerPayload carries a handler-produced shape, already wire-encoded
	// by that handler's ToWire.
	HandlerPayload json.RawMessage

	// Raw carries untagged data, marshaled with the default codec.
	Raw json.RawMessage
}

// NodeValue wraps a plain container (array or string-keyed object) that has
// derivable reference identity, tagging it with a traversal-local sequence
// number. JSON has no native back-reference notation, unlike the structured
// clone the source ecosystem's serializer assumes; Node/Ref is this module's
// substitute, letting the decoder rebuild shared and cyclic subgraphs (spec
// §3 invariants 3-4) over an ordinary JSON transport.
type NodeValue struct {
	Seq    uint32           `json:"seq"`
	Kind   string           `json:"kind"` // "array" or "object"
	Array  []Value          `json:"array,omitempty"`
	Object map[string]Value `json:"object,omitempty"`
}

// RefValue is a back-reference to a NodeValue already emitted earlier in the
// same traversal.
type RefValue struct {
	Seq uint32 `json:"seq"`
}

// ProxyValue references a peer-owned target.
type ProxyValue struct {
	ID     ID   `json:"id"`
	Opaque bool `json:"opaque"`
}

// PromiseValue is a placeholder for a deferred value.
type PromiseValue struct {
	ID ID `json:"id"`
}

// PropertyValue is a not-yet-read property access.
type PropertyValue struct {
	TargetProxyID ID     `json:"targetProxyId"`
	Property      string `json:"property"`
}

// ThrownValue carries an error surfaced inline in a value position.
type ThrownValue struct {
	Error *RemoteErrorShape `json:"error"`
}

// RemoteErrorShape is the serialized form of an error crossing the wire.
type RemoteErrorShape struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// wireDoc is the JSON shape of a tagged Value on the wire.
type wireDoc struct {
	Tag      string          `json:"@rpc"`
	Proxy    *ProxyValue     `json:"proxy,omitempty"`
	Promise  *PromiseValue   `json:"promise,omitempty"`
	Property *PropertyValue  `json:"property,omitempty"`
	Thrown   *ThrownValue    `json:"thrown,omitempty"`
	Node     *NodeValue      `json:"node,omitempty"`
	Ref      *RefValue       `json:"ref,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON renders a Value as either a tagged document or raw data.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Tag == "" && v.HandlerType == "" {
		if v.Raw == nil {
			return []byte("null"), nil
		}
		return v.Raw, nil
	}

	doc := wireDoc{Proxy: v.Proxy, Promise: v.Promise, Property: v.Property, Thrown: v.Thrown, Node: v.Node, Ref: v.Ref}
	switch v.Tag {
	case TagProxy, TagPromise, TagProperty, TagThrown, TagNode, TagRef:
		doc.Tag = string(v.Tag)
	default:
		doc.Tag = v.HandlerType
		doc.Payload = v.HandlerPayload
	}
	return json.Marshal(doc)
}

// UnmarshalJSON recognizes a tagged document; anything else is treated as
// raw data (primitives, plain containers, natively cloneable built-ins).
func (v *Value) UnmarshalJSON(data []byte) error {
	var probe struct {
		Tag *string `json:"@rpc"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Tag == nil {
		v.Raw = append(json.RawMessage(nil), data...)
		return nil
	}

	var doc wireDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("wire: decode tagged value: %w", err)
	}

	switch Tag(doc.Tag) {
	case TagProxy:
		if doc.Proxy == nil {
			return fmt.Errorf("wire: proxy tag missing proxy field")
		}
		v.Tag, v.Proxy = TagProxy, doc.Proxy
	case TagPromise:
		if doc.Promise == nil {
			return fmt.Errorf("wire: promise tag missing promise field")
		}
		v.Tag, v.Promise = TagPromise, doc.Promise
	case TagProperty:
		if doc.Property == nil {
			return fmt.Errorf("wire: property tag missing property field")
		}
		v.Tag, v.Property = TagProperty, doc.Property
	case TagThrown:
		if doc.Thrown == nil {
			return fmt.Errorf("wire: thrown tag missing thrown field")
		}
		v.Tag, v.Thrown = TagThrown, doc.Thrown
	case TagNode:
		if doc.Node == nil {
			return fmt.Errorf("wire: node tag missing node field")
		}
		v.Tag, v.Node = TagNode, doc.Node
	case TagRef:
		if doc.Ref == nil {
			return fmt.Errorf("wire: ref tag missing ref field")
		}
		v.Tag, v.Ref = TagRef, doc.Ref
	default:
		v.HandlerType = doc.Tag
		v.HandlerPayload = doc.Payload
	}
	return nil
}

// RawValue wraps arbitrary data that must round-trip as-is through the
// transport's codec (no wire tag).
func RawValue(data json.RawMessage) Value {
	return Value{Raw: data}
}

// ProxyRef builds a wire-proxy Value.
func ProxyRef(id ID, opaque bool) Value {
	return Value{Tag: TagProxy, Proxy: &ProxyValue{ID: id, Opaque: opaque}}
}

// PromiseRef builds a wire-promise Value.
func PromiseRef(id ID) Value {
	return Value{Tag: TagPromise, Promise: &PromiseValue{ID: id}}
}

// PropertyRef builds a wire-property Value.
func PropertyRef(target ID, property string) Value {
	return Value{Tag: TagProperty, Property: &PropertyValue{TargetProxyID: target, Property: property}}
}

// ThrownRef builds a wire-thrown Value.
func ThrownRef(e *RemoteErrorShape) Value {
	return Value{Tag: TagThrown, Thrown: &ThrownValue{Error: e}}
}

// HandlerRef builds a handler-tagged Value from an already-encoded payload.
func HandlerRef(wireType string, payload json.RawMessage) Value {
	return Value{HandlerType: wireType, HandlerPayload: payload}
}

// NodeArray builds a wire-node Value wrapping a plain array.
func NodeArray(seq uint32, items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Tag: TagNode, Node: &NodeValue{Seq: seq, Kind: "array", Array: items}}
}

// NodeObject builds a wire-node Value wrapping a plain string-keyed object.
func NodeObject(seq uint32, fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Tag: TagNode, Node: &NodeValue{Seq: seq, Kind: "object", Object: fields}}
}

// RefSeq builds a back-reference Value to a NodeValue emitted earlier in the
// same traversal.
func RefSeq(seq uint32) Value {
	return Value{Tag: TagRef, Ref: &RefValue{Seq: seq}}
}
