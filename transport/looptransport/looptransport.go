// Package looptransport builds a connected pair of in-process
// rpcconn.Endpoints over a socketpair, for tests and the demo CLI — the
// Go-native stand-in for two message ports created by a single call in the
// source ecosystem.
//
// Grounded on sammck-go-wstunnel's share/socks_skeleton_endpoint.go, which
// uses the same github.com/prep/socketpair library (socketpair.New("unix"))
// to hand two independently owned net.Conn halves to otherwise-unrelated
// consumers.
package looptransport

import (
	"fmt"

	"github.com/prep/socketpair"

	"github.com/relaywire/rpcconn/transport"
)

// New returns two Endpoints, a and b, wired together by a unix-domain
// socketpair: anything a.Send posts arrives at a listener subscribed on b,
// and vice versa.
func New() (a, b *transport.StreamEndpoint, err error) {
	connA, connB, err := socketpair.New("unix")
	if err != nil {
		return nil, nil, fmt.Errorf("looptransport: create socketpair: %w", err)
	}
	a = transport.NewStreamEndpoint(connA, connA, connA)
	b = transport.NewStreamEndpoint(connB, connB, connB)
	return a, b, nil
}
