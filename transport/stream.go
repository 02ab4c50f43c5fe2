// Package transport holds reference Endpoint adapters for the Connection
// engine: byte-stream transports sharing a length-prefixed JSON framing
// (this file), plus looptransport, pipeendpoint, and wsendpoint, one
// concrete transport each.
package transport

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/relaywire/rpcconn"
	"github.com/relaywire/rpcconn/wire"
)

// StreamEndpoint adapts any io.ReadWriteCloser pair into an rpcconn.Endpoint
// by framing each message with a 4-byte big-endian length prefix — byte
// streams have no message boundaries of their own, unlike the source
// ecosystem's structured-clone transports. Grounded in
// internal/adapter/outbound/mcp/stdio_client.go's pipe ownership model
// (Start/Wait/Close over raw io.ReadCloser/io.WriteCloser), generalized to
// any stream pair.
//
// Transferables have no meaning over a byte stream: the value a
// markers.Transfer wraps is already inlined as ordinary JSON by the
// encoder, so StreamEndpoint.Send ignores its transfers argument (recorded
// in DESIGN.md as a dropped spec affordance with no byte-stream analogue).
type StreamEndpoint struct {
	w       io.Writer
	closer  io.Closer
	writeMu sync.Mutex

	subMu     sync.Mutex
	listeners map[int]rpcconn.Listener
	nextSubID int

	done chan struct{}
}

// NewStreamEndpoint wraps r/w/closer in a StreamEndpoint and starts its read
// loop on a new goroutine. Close stops the read loop and closes closer.
func NewStreamEndpoint(r io.Reader, w io.Writer, closer io.Closer) *StreamEndpoint {
	e := &StreamEndpoint{
		w:         w,
		closer:    closer,
		listeners: make(map[int]rpcconn.Listener),
		done:      make(chan struct{}),
	}
	go e.readLoop(r)
	return e
}

func (e *StreamEndpoint) readLoop(r io.Reader) {
	br := bufio.NewReader(r)
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		frame := make([]byte, n)
		if _, err := io.ReadFull(br, frame); err != nil {
			return
		}
		e.dispatch(json.RawMessage(frame))
	}
}

func (e *StreamEndpoint) dispatch(msg json.RawMessage) {
	e.subMu.Lock()
	listeners := make([]rpcconn.Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.subMu.Unlock()
	for _, l := range listeners {
		l(msg)
	}
}

// Send implements rpcconn.Endpoint.
func (e *StreamEndpoint) Send(msg json.RawMessage, _ []wire.Transferable) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(msg)))
	if _, err := e.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("transport: write frame length: %w", err)
	}
	if _, err := e.w.Write(msg); err != nil {
		return fmt.Errorf("transport: write frame body: %w", err)
	}
	return nil
}

// Subscribe implements rpcconn.Endpoint.
func (e *StreamEndpoint) Subscribe(l rpcconn.Listener) (unsubscribe func()) {
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

// Close closes the underlying stream, terminating the read loop.
func (e *StreamEndpoint) Close() error {
	select {
	case <-e.done:
		return nil
	default:
		close(e.done)
	}
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}
