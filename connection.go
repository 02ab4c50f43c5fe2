package rpcconn

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaywire/rpcconn/handler"
	"github.com/relaywire/rpcconn/observability"
	"github.com/relaywire/rpcconn/proxy"
	"github.com/relaywire/rpcconn/registry"
	"github.com/relaywire/rpcconn/wire"
)

// Connection is one side of a bidirectional Connection engine (spec §2,
// §3 "Connection" entity): the wire-format serializer/deserializer, the
// local and remote registries, the pending-call and pending-promise
// tables, and the dispatcher that interprets incoming Envelopes.
//
// The protocol's scheduling model assumes a single-threaded event loop
// (spec §5); this rendering keeps the dispatcher a single goroutine, as
// the protocol requires, but guards the tables a concurrent Go caller can
// reach (pendingCalls, local, remoteCache) with their own mutexes rather
// than pretending Go call sites are as cooperative as the source
// ecosystem's.
type Connection struct {
	id   string
	ep   Endpoint
	cfg  *config
	log  *slog.Logger
	met  *observability.Metrics
	trc  trace.Tracer

	nextID atomic.Uint64

	local       *registry.Local
	remoteCache *registry.Remote[proxy.Remote]

	pendingCalls    *pendingTable
	pendingPromises *pendingTable

	handlers *handler.Registry

	unsubscribe func()

	closeOnce sync.Once
	closed    atomic.Bool
}

// newConnection wires up a Connection. idStart is 0 for Expose (the root
// object occupies id 0) and 1 for Wrap (spec §3 "Id space").
func newConnection(ep Endpoint, cfg *config, idStart wire.ID) *Connection {
	id := uuid.NewString()
	c := &Connection{
		id:              id,
		ep:              ep,
		cfg:             cfg,
		log:             cfg.logger.With(slog.String("conn_id", id)),
		met:             cfg.metrics,
		trc:             cfg.tracer,
		pendingCalls:    newPendingTable(),
		pendingPromises: newPendingTable(),
		handlers:        handler.NewRegistry(cfg.handlers),
	}
	c.nextID.Store(uint64(idStart))
	c.local = registry.NewLocal(c.allocID)
	c.remoteCache = registry.NewRemote[proxy.Remote](c.onRemoteProxyDead)

	for _, h := range c.handlers.All() {
		h.Connect(messageContext{conn: c, wireType: h.WireType()})
	}
	return c
}

// listen subscribes the dispatcher to ep, starting delivery of incoming
// envelopes. Split from newConnection so Expose/Wrap can register the
// handshake's pending-call waiter first, closing the race between
// subscribing and a peer reply arriving before anyone is waiting for it.
func (c *Connection) listen() {
	c.unsubscribe = c.ep.Subscribe(c.onMessage)
}

// allocID mints the next id from this Connection's single counter (spec §3
// "Id space": one counter serves local objects, outgoing promises, and
// outgoing call requests).
func (c *Connection) allocID() wire.ID {
	return wire.ID(c.nextID.Add(1) - 1)
}

// send encodes and posts env, recording its digest for log correlation.
func (c *Connection) send(env wire.Envelope, transfers []wire.Transferable) error {
	data, err := wire.Encode(env)
	if err != nil {
		return &TransportError{Op: "encode", Err: err}
	}
	if err := c.ep.Send(json.RawMessage(data), transfers); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	c.log.Debug("rpcconn: sent envelope",
		slog.String("conn", c.id), slog.String("kind", string(env.Kind)), slog.String("digest", wire.Digest(data)))
	return nil
}

// Invoke implements proxy.Caller: it issues a `call` Envelope against
// target and blocks until the matching return/throw arrives or ctx is
// done (spec §4.6 "Direct invocation" / "Property read" / "Property
// write").
func (c *Connection) Invoke(ctx context.Context, target wire.ID, action wire.Action, method string, args []any) (any, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}

	start := time.Now()
	ctx, span := c.trc.Start(ctx, "rpcconn.call")
	defer span.End()

	// One traversal for the whole argument list, mirroring decodeArgs, so a
	// reference shared across two arguments keeps its identity. Each
	// argument is a top-level value position (empty path).
	var transfers []wire.Transferable
	st := &encodeState{
		conn:      c,
		cache:     make(map[any]wire.Value),
		nodeSeq:   make(map[any]uint32),
		transfers: &transfers,
	}
	wireArgs := make([]wire.Value, len(args))
	for i, a := range args {
		v, err := st.encode(a, "")
		if err != nil {
			return nil, err
		}
		wireArgs[i] = v
	}

	id := c.allocID()
	waiter := c.pendingCalls.register(id)
	env := wire.CallEnvelope(id, target, action, method, wireArgs)
	if err := c.send(env, transfers); err != nil {
		c.pendingCalls.forget(id)
		return nil, err
	}
	if c.met != nil {
		c.met.CallsSentTotal.WithLabelValues(string(action)).Inc()
	}

	select {
	case res := <-waiter:
		if c.met != nil {
			c.met.CallDuration.Observe(time.Since(start).Seconds())
		}
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReleaseRemote implements proxy.Caller: it drops the remote proxy cache
// entry and tells the peer this side no longer needs id (used for eager,
// explicit release; the common path is the weak cache's own finalization
// hook, onRemoteProxyDead).
func (c *Connection) ReleaseRemote(id wire.ID) {
	c.remoteCache.Drop(id)
	c.updateSizeMetrics()
	if c.closed.Load() {
		return
	}
	if err := c.send(wire.ReleaseEnvelope(id), nil); err != nil {
		c.log.Warn("rpcconn: failed to send release", slog.String("conn", c.id), slog.Any("err", err))
	}
}

// onRemoteProxyDead is the weak cache's finalization callback (spec §4.2,
// §4.8 "Remote proxy entry" live→dead): it runs from a GC-driven cleanup
// goroutine, never from the dispatcher.
func (c *Connection) onRemoteProxyDead(id wire.ID) {
	c.updateSizeMetrics()
	if c.closed.Load() {
		return
	}
	if c.met != nil {
		c.met.ReleasesSentTotal.Inc()
	}
	if err := c.send(wire.ReleaseEnvelope(id), nil); err != nil {
		c.log.Warn("rpcconn: failed to send release on finalization", slog.String("conn", c.id), slog.Any("err", err))
	}
}

// updateSizeMetrics refreshes the registry-size gauges (spec §2's local
// registry and remote proxy cache) from their current Len(); called at every
// mutation point in expose.go/encode.go/decode.go/dispatch.go and this file
// rather than on a poll interval, since both registries are already mutex-guarded and cheap to
// re-read.
func (c *Connection) updateSizeMetrics() {
	if c.met == nil {
		return
	}
	c.met.LocalRegistrySize.Set(float64(c.local.Len()))
	c.met.RemoteProxyCacheSize.Set(float64(c.remoteCache.Len()))
}

// handlerSendMessage posts a `handler` sideband Envelope tagged with
// wireType. Wrapped per-handler by messageContext so each handler's
// MessageContext.SendMessage stamps its own wire type without the handler
// having to remember it.
func (c *Connection) handlerSendMessage(wireType string, payload any) error {
	v, err := c.encodeTop(payload, "", nil)
	if err != nil {
		return err
	}
	return c.send(wire.HandlerEnvelope(wireType, v), nil)
}

// messageContext binds handler.MessageContext.SendMessage to a single
// handler's wire type.
type messageContext struct {
	conn     *Connection
	wireType string
}

func (m messageContext) SendMessage(payload any) error {
	return m.conn.handlerSendMessage(m.wireType, payload)
}

// Close stops the dispatcher, orphans every pending call and promise with
// ErrConnectionClosed, releases all locally registered objects, and calls
// Disconnect on every handler (spec §5 "Cancellation and timeouts": "Closing
// the Connection must reject all pending calls and pending promises, and
// must invoke disconnect on every handler").
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.pendingCalls.orphanAll(ErrConnectionClosed)
		c.pendingPromises.orphanAll(ErrConnectionClosed)
		c.local.ReleaseAll()
		c.updateSizeMetrics()
		for _, h := range c.handlers.All() {
			h.Disconnect()
		}
		c.log.Info("rpcconn: connection closed", slog.String("conn", c.id))
	})
	return err
}
