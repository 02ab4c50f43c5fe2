package rpcconn

import (
	"sync"

	"github.com/relaywire/rpcconn/wire"
)

// settleResult is what a pending call or pending promise is settled with:
// either a deserialized value, or an error (RemoteError, or
// ErrConnectionClosed on orphaning).
type settleResult struct {
	value any
	err   error
}

// pendingTable tracks outstanding ids awaiting a settle message: either
// return/throw for an id this side allocated for an outgoing call, or
// resolve/reject for an id the peer allocated when serializing a then-able
// (spec §4.8 "Pending call" / "Pending promise"). The source ecosystem's
// single-threaded event loop lets it use a plain map; real Go goroutines
// issuing concurrent Remote.Call require a mutex around registration.
type pendingTable struct {
	mu   sync.Mutex
	byID map[wire.ID]chan settleResult
}

func newPendingTable() *pendingTable {
	return &pendingTable{byID: make(map[wire.ID]chan settleResult)}
}

// register opens a one-shot settle channel for id.
func (t *pendingTable) register(id wire.ID) chan settleResult {
	ch := make(chan settleResult, 1)
	t.mu.Lock()
	t.byID[id] = ch
	t.mu.Unlock()
	return ch
}

// forget removes id without settling it (used when a call is abandoned
// before it was ever sent, e.g. encode failure).
func (t *pendingTable) forget(id wire.ID) {
	t.mu.Lock()
	delete(t.byID, id)
	t.mu.Unlock()
}

// settle delivers res to id's waiter. A settle for an unknown id is
// silently dropped (spec §7 "Unknown-id policy", §3 invariant 5).
func (t *pendingTable) settle(id wire.ID, res settleResult) {
	t.mu.Lock()
	ch, ok := t.byID[id]
	if ok {
		delete(t.byID, id)
	}
	t.mu.Unlock()
	if ok {
		ch <- res
	}
}

// orphanAll rejects every outstanding entry with err, e.g. on Connection
// close (spec §4.8 "orphaned").
func (t *pendingTable) orphanAll(err error) {
	t.mu.Lock()
	entries := t.byID
	t.byID = make(map[wire.ID]chan settleResult)
	t.mu.Unlock()
	for _, ch := range entries {
		ch <- settleResult{err: err}
	}
}
