package rpcconn

import (
	"encoding/json"

	"github.com/relaywire/rpcconn/wire"
)

// Listener receives one message the peer sent through an Endpoint.
type Listener func(msg json.RawMessage)

// Endpoint is the sole transport dependency a Connection depends on (spec
// §4.1, §6): a structured-clone-capable message channel with an optional
// transferable list, addressed by subscribe/unsubscribe rather than a read
// loop the engine itself owns. Implementations must deliver messages in
// the order they were sent, with no other ordering guarantee, no delivery
// acknowledgment, and no framing.
type Endpoint interface {
	// Send delivers one already wire-encoded message, moving ownership of
	// transfers to the peer rather than copying them.
	Send(msg json.RawMessage, transfers []wire.Transferable) error
	// Subscribe registers l to receive every message the peer sends over
	// this Endpoint. The returned func unsubscribes l; it is safe to call
	// more than once.
	Subscribe(l Listener) (unsubscribe func())
}
