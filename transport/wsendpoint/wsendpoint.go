// Package wsendpoint adapts a *websocket.Conn into an rpcconn.Endpoint.
// Grounded on sammck-go-wstunnel's share/client.go and share/server.go,
// which dial and accept gorilla/websocket connections for the same
// "bidirectional message channel" role this module's Endpoint abstracts.
package wsendpoint

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relaywire/rpcconn"
	"github.com/relaywire/rpcconn/wire"
)

// Endpoint adapts conn: unlike a byte-stream transport, websocket already
// frames messages, so no length-prefixing is needed — each Send is one
// text frame and each received frame is one message.
type Endpoint struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	subMu    sync.Mutex
	listeners map[int]rpcconn.Listener
	nextSubID int
}

// New wraps conn and starts its read loop on a new goroutine.
func New(conn *websocket.Conn) *Endpoint {
	e := &Endpoint{conn: conn, listeners: make(map[int]rpcconn.Listener)}
	go e.readLoop()
	return e
}

func (e *Endpoint) readLoop() {
	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			return
		}
		e.subMu.Lock()
		listeners := make([]rpcconn.Listener, 0, len(e.listeners))
		for _, l := range e.listeners {
			listeners = append(listeners, l)
		}
		e.subMu.Unlock()
		msg := json.RawMessage(data)
		for _, l := range listeners {
			l(msg)
		}
	}
}

// Send implements rpcconn.Endpoint. Transferables have no websocket
// equivalent: the value they wrap is already inlined as ordinary JSON by
// the encoder, so the transfers argument is ignored.
func (e *Endpoint) Send(msg json.RawMessage, _ []wire.Transferable) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.conn.WriteMessage(websocket.TextMessage, msg)
}

// Subscribe implements rpcconn.Endpoint.
func (e *Endpoint) Subscribe(l rpcconn.Listener) (unsubscribe func()) {
	e.subMu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.listeners[id] = l
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		delete(e.listeners, id)
		e.subMu.Unlock()
	}
}

// Close closes the underlying websocket connection.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}
