package rpcconn

import (
	"context"
	"sync"
)

// Future is the placeholder value the deserializer returns for a
// wire-promise (spec §4.4 step 4): an Awaiter that settles once the peer
// posts the matching resolve/reject for its id. It implements
// markers.Awaiter so a Future received as a call argument or result can
// itself be re-serialized if passed on.
type Future struct {
	ch   chan settleResult
	mu   sync.Mutex
	done bool
	res  settleResult
}

func newFuture(ch chan settleResult) *Future {
	return &Future{ch: ch}
}

// Await blocks until the peer settles this promise or ctx is done. Designed
// for a single caller, matching the one decoded Future per wire-promise id
// this engine ever hands out; concurrent calls from multiple goroutines
// should share the result via their own synchronization.
func (f *Future) Await(ctx context.Context) (any, error) {
	f.mu.Lock()
	if f.done {
		res := f.res
		f.mu.Unlock()
		return res.value, res.err
	}
	f.mu.Unlock()

	select {
	case r := <-f.ch:
		f.mu.Lock()
		if !f.done {
			f.res, f.done = r, true
		}
		res := f.res
		f.mu.Unlock()
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
