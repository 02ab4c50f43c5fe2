// Package handler defines the pluggable transform extension point (spec
// §4.3 step 8, §4.4 step 5, §6): a handler is identified by a unique
// wire-type tag and offers a synchronous toWire/fromWire transform plus an
// optional asynchronous sideband channel.
package handler

import "github.com/relaywire/rpcconn/wire"

// EncodeContext is handed to a Handler's ToWire so it can recursively
// serialize nested values while preserving the path and traversal-local
// cycle state.
type EncodeContext interface {
	// ToWire recursively encodes child at the given key (path component).
	ToWire(child any, key string) (wire.Value, error)
}

// DecodeContext is handed to a Handler's FromWire so it can recursively
// deserialize nested values while sharing the traversal-local visited map.
type DecodeContext interface {
	FromWire(child wire.Value) (any, error)
}

// MessageContext is handed to Connect/OnMessage for sideband messaging.
type MessageContext interface {
	// SendMessage posts a `handler` Envelope tagged with this handler's
	// WireType.
	SendMessage(payload any) error
}

// Handler is a pluggable transform for values the core serializer does not
// natively understand (spec §6). WireType, CanHandle, ToWire and FromWire
// must be implemented; the decoder calls FromWire for every value tagged
// with this handler's WireType, and NopHandler does not supply it. A Handler
// that doesn't need sideband messaging or lifecycle hooks can embed
// NopHandler for no-op Connect, OnMessage and Disconnect.
type Handler interface {
	// WireType is this handler's unique tag.
	WireType() string
	// CanHandle is a fast predicate evaluated during serialization.
	CanHandle(value any) bool
	// ToWire produces this handler's wire-tagged shape for value.
	ToWire(value any, ctx EncodeContext) (any, error)
	// FromWire reconstructs a value from this handler's wire shape.
	FromWire(wireValue any, ctx DecodeContext) (any, error)
	// Connect is called once, on Connection construction.
	Connect(ctx MessageContext)
	// OnMessage is called on receipt of a matching `handler` Envelope.
	OnMessage(payload any, ctx DecodeContext)
	// Disconnect is called on Connection close.
	Disconnect()
}

// NopHandler implements the optional Handler methods as no-ops; embed it in
// a concrete handler that only needs WireType/CanHandle/ToWire/FromWire.
type NopHandler struct{}

func (NopHandler) Connect(MessageContext)      {}
func (NopHandler) OnMessage(any, DecodeContext) {}
func (NopHandler) Disconnect()                 {}
