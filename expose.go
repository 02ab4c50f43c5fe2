package rpcconn

import (
	"io"

	"github.com/relaywire/rpcconn/wire"
)

// Expose hands root out to the peer over ep: it creates a Connection with
// root registered at id 0 (spec §3 "Id space": "the exposing side's root
// target occupies that id unambiguously"), sends the handshake return
// immediately (spec §4.5 "Handshake"), and returns an io.Closer that tears
// the Connection down (spec §4.7).
//
// Grounded on sdks/go/client.go's NewClient(opts ...Option) functional-
// options constructor idiom, adapted from an HTTP client to a message-
// passing peer.
func Expose(root any, ep Endpoint, opts ...Option) (io.Closer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := newConnection(ep, cfg, wire.HandshakeID)
	c.local.RegisterAt(c.allocID(), root)
	c.updateSizeMetrics()
	c.listen()

	rootWire := wire.ProxyRef(wire.HandshakeID, false)
	if err := c.send(wire.ReturnEnvelope(wire.HandshakeID, rootWire), nil); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
