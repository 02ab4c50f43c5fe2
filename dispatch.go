package rpcconn

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/relaywire/rpcconn/markers"
	"github.com/relaywire/rpcconn/wire"
)

// onMessage is the Endpoint listener installed in newConnection: a switch
// over wire.Kind driving every stateful operation the Connection supports
// (spec §4.5). It runs on whatever goroutine the Endpoint delivers messages
// on; the source ecosystem assumes a single-threaded event loop for this,
// but nothing here depends on that beyond the mutex-guarded tables each
// call touches.
func (c *Connection) onMessage(msg json.RawMessage) {
	env, err := wire.Decode(msg)
	if err != nil {
		c.log.Warn("rpcconn: dropping malformed envelope", slog.String("conn", c.id), slog.Any("err", err))
		return
	}
	c.log.Debug("rpcconn: received envelope",
		slog.String("conn", c.id), slog.String("kind", string(env.Kind)), slog.String("digest", wire.Digest(msg)))

	switch env.Kind {
	case wire.KindCall:
		go c.handleCall(env)
	case wire.KindReturn:
		c.handleSettle(c.pendingCalls, env.ID, env.Value, nil)
	case wire.KindThrow:
		c.handleSettle(c.pendingCalls, env.ID, nil, env.Error)
	case wire.KindResolve:
		c.handleSettle(c.pendingPromises, env.ID, env.Value, nil)
	case wire.KindReject:
		c.handleSettle(c.pendingPromises, env.ID, nil, env.Error)
	case wire.KindRelease:
		c.handleRelease(env.ID)
	case wire.KindHandler:
		go c.handleHandlerMessage(env)
	default:
		c.log.Warn("rpcconn: unrecognized envelope kind", slog.String("conn", c.id), slog.String("kind", string(env.Kind)))
	}
}

// handleCall implements spec §4.5 "Call handling". It runs on its own
// goroutine per call so a slow or blocking target method cannot stall the
// dispatcher's delivery of unrelated messages (settles, other calls).
func (c *Connection) handleCall(env wire.Envelope) {
	if c.met != nil {
		defer func() { c.met.CallsReceivedTotal.WithLabelValues("dispatched").Inc() }()
	}

	target, ok := c.local.Get(env.Target)
	if !ok {
		c.postThrow(env.ID, &ReferenceError{ID: env.Target})
		return
	}

	args, err := c.decodeArgs(env.Args)
	if err != nil {
		c.postThrow(env.ID, err)
		return
	}

	result, err := c.dispatchAction(context.Background(), target, env.Action, env.Method, args)
	if err != nil {
		c.postThrow(env.ID, err)
		return
	}

	if aw, ok := result.(markers.Awaiter); ok {
		result, err = aw.Await(context.Background())
		if err != nil {
			c.postThrow(env.ID, err)
			return
		}
	}

	var transfers []wire.Transferable
	wireVal, err := c.encodeTop(result, "", &transfers)
	if err != nil {
		c.postThrow(env.ID, err)
		return
	}
	if err := c.send(wire.ReturnEnvelope(env.ID, wireVal), transfers); err != nil {
		c.log.Warn("rpcconn: failed to send return", slog.String("conn", c.id), slog.Any("err", err))
	}
}

// dispatchAction implements spec §4.5 step 3's action switch.
func (c *Connection) dispatchAction(ctx context.Context, target any, action wire.Action, method string, args []any) (any, error) {
	switch action {
	case wire.ActionGet:
		if method == "" {
			return nil, &TypeError{Reason: "get requires a property name"}
		}
		return getMember(target, method)
	case wire.ActionSet:
		if method == "" {
			return nil, &TypeError{Reason: "set requires a property name"}
		}
		if len(args) == 0 {
			return nil, &TypeError{Reason: "set requires a value argument"}
		}
		return nil, setMember(target, method, args[0])
	case wire.ActionCall:
		return callTarget(ctx, target, method, args)
	default:
		return nil, &TypeError{Reason: "unknown call action"}
	}
}

// postThrow serializes err as a RemoteErrorShape and posts a `throw` for id
// (spec §7 "Propagation policy": errors on the serving side never terminate
// the dispatcher).
func (c *Connection) postThrow(id wire.ID, err error) {
	if c.met != nil {
		c.met.CallsReceivedTotal.WithLabelValues("throw").Inc()
	}
	if err := c.send(wire.ThrowEnvelope(id, shapeFromError(err)), nil); err != nil {
		c.log.Warn("rpcconn: failed to send throw", slog.String("conn", c.id), slog.Any("err", err))
	}
}

// handleSettle implements spec §4.5 "Settle handling": return/resolve carry
// a value to decode, throw/reject carry an error shape. Unknown ids are
// silently dropped by pendingTable.settle itself (spec §7 "Unknown-id
// policy").
func (c *Connection) handleSettle(table *pendingTable, id wire.ID, value *wire.Value, errShape *wire.RemoteErrorShape) {
	if errShape != nil {
		table.settle(id, settleResult{err: remoteErrorFromShape(errShape)})
		return
	}
	var v any
	if value != nil {
		decoded, err := c.decodeTop(*value)
		if err != nil {
			table.settle(id, settleResult{err: err})
			return
		}
		v = decoded
	}
	table.settle(id, settleResult{value: v})
}

// handleRelease implements spec §4.5/§4.8: the peer no longer needs the
// local object at id. Releasing an unknown or already-released id is a
// no-op (spec §8 "Idempotent release").
func (c *Connection) handleRelease(id wire.ID) {
	c.local.Release(id)
	c.updateSizeMetrics()
}

// handleHandlerMessage implements spec §4.5 "Handler messages": route by
// wireType, deserialize the payload, and deliver to OnMessage. Handler
// errors are logged and swallowed (spec §7): there is no pending call id to
// surface them on.
func (c *Connection) handleHandlerMessage(env wire.Envelope) {
	h := c.handlers.ByWireType(env.WireType)
	if h == nil {
		c.log.Warn("rpcconn: handler message for unregistered wire type", slog.String("conn", c.id), slog.String("wireType", env.WireType))
		return
	}
	var payload wire.Value
	if env.Payload != nil {
		payload = *env.Payload
	}
	st := &decodeState{conn: c, nodes: make(map[uint32]any)}
	shape, err := st.decode(payload)
	if err != nil {
		if c.met != nil {
			c.met.HandlerErrorsTotal.WithLabelValues(env.WireType).Inc()
		}
		c.log.Warn("rpcconn: handler payload decode failed", slog.String("conn", c.id), slog.String("wireType", env.WireType), slog.Any("err", err))
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				if c.met != nil {
					c.met.HandlerErrorsTotal.WithLabelValues(env.WireType).Inc()
				}
				c.log.Error("rpcconn: handler OnMessage panicked", slog.String("conn", c.id), slog.String("wireType", env.WireType), slog.Any("panic", r))
			}
		}()
		h.OnMessage(shape, &decodeContext{state: st})
	}()
}
