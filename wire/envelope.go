package wire

import (
	"encoding/json"
	"fmt"
)

// Envelope is the outermost value sent through Endpoint.Send — a
// discriminated union over the message Kinds of spec §4.5.
type Envelope struct {
	Kind Kind `json:"kind"`

	// call
	ID     ID     `json:"id,omitempty"`
	Target ID     `json:"target,omitempty"`
	Action Action `json:"action,omitempty"`
	Method string `json:"method,omitempty"`
	Args   []Value `json:"args,omitempty"`

	// return / resolve
	Value *Value `json:"value,omitempty"`

	// throw / reject
	Error *RemoteErrorShape `json:"error,omitempty"`

	// handler
	WireType string `json:"wireType,omitempty"`
	Payload  *Value `json:"payload,omitempty"`
}

// Encode serializes an Envelope to its wire format. This is the Connection
// engine's analogue of pkg/mcp/codec.go's EncodeMessage: a thin, centrally
// located wrapper so call sites never marshal an Envelope directly.
func Encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("wire: encode envelope: %w", err)
	}
	return data, nil
}

// Decode deserializes wire format data into an Envelope.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return e, nil
}

// CallEnvelope builds a "call" Envelope (call/get/set action).
func CallEnvelope(id, target ID, action Action, method string, args []Value) Envelope {
	return Envelope{Kind: KindCall, ID: id, Target: target, Action: action, Method: method, Args: args}
}

// ReturnEnvelope builds a "return" Envelope.
func ReturnEnvelope(id ID, v Value) Envelope {
	return Envelope{Kind: KindReturn, ID: id, Value: &v}
}

// ThrowEnvelope builds a "throw" Envelope.
func ThrowEnvelope(id ID, e *RemoteErrorShape) Envelope {
	return Envelope{Kind: KindThrow, ID: id, Error: e}
}

// ResolveEnvelope builds a "resolve" Envelope.
func ResolveEnvelope(id ID, v Value) Envelope {
	return Envelope{Kind: KindResolve, ID: id, Value: &v}
}

// RejectEnvelope builds a "reject" Envelope.
func RejectEnvelope(id ID, e *RemoteErrorShape) Envelope {
	return Envelope{Kind: KindReject, ID: id, Error: e}
}

// ReleaseEnvelope builds a "release" Envelope.
func ReleaseEnvelope(id ID) Envelope {
	return Envelope{Kind: KindRelease, ID: id}
}

// HandlerEnvelope builds a "handler" sideband Envelope.
func HandlerEnvelope(wireType string, payload Value) Envelope {
	return Envelope{Kind: KindHandler, WireType: wireType, Payload: &payload}
}
