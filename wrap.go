package rpcconn

import (
	"context"
	"fmt"

	"github.com/relaywire/rpcconn/proxy"
	"github.com/relaywire/rpcconn/wire"
)

// Wrap binds a Connection to the peer exposed over ep and resolves to the
// proxy for its root object once the handshake return arrives (spec §4.7).
// The id counter starts at 1 (spec §3 "Id space": "the side that wraps
// skips 0 so that the exposing side's root target occupies that id
// unambiguously").
func Wrap(ctx context.Context, ep Endpoint, opts ...Option) (*proxy.Remote, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	c := newConnection(ep, cfg, wire.HandshakeID+1)
	waiter := c.pendingCalls.register(wire.HandshakeID)
	c.listen()

	select {
	case res := <-waiter:
		if res.err != nil {
			_ = c.Close()
			return nil, res.err
		}
		root, ok := res.value.(*proxy.Remote)
		if !ok {
			_ = c.Close()
			return nil, fmt.Errorf("rpcconn: handshake value was not a proxy (got %T)", res.value)
		}
		return root, nil
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}
}
