package rpcconn

import (
	"errors"
	"fmt"

	"github.com/relaywire/rpcconn/wire"
)

// Sentinel errors for use with errors.Is(), matching sdks/go/errors.go's
// ErrPolicyDenied/ErrApprovalTimeout/ErrServerUnreachable convention: one
// sentinel per typed error below, paired with an Is method on that type.
// TransportError has no sentinel; it unwraps to its underlying cause.
var (
	// ErrRemote is the class sentinel for RemoteError.
	ErrRemote = errors.New("remote invocation error")

	// ErrReference is the class sentinel for ReferenceError.
	ErrReference = errors.New("unknown reference")

	// ErrType is the class sentinel for TypeError.
	ErrType = errors.New("type error")

	// ErrNonCloneable is the class sentinel for NonCloneableError.
	ErrNonCloneable = errors.New("non-cloneable value")
)

// TransportError reports a failure to send a message over the Endpoint,
// treated as fatal for the call in flight (spec §7 "Transport error").
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpcconn: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is an error thrown by the remote target, surfaced as a
// rejection on the originating pending call (spec §7 "Remote invocation
// error").
type RemoteError struct {
	Name    string
	Message string
	Stack   string
}

func (e *RemoteError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Is reports whether this error matches the target error. It supports
// errors.Is(err, ErrRemote).
func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

func remoteErrorFromShape(s *wire.RemoteErrorShape) error {
	if s == nil {
		return &RemoteError{Name: "Error", Message: "unknown remote error"}
	}
	return &RemoteError{Name: s.Name, Message: s.Message, Stack: s.Stack}
}

// shapeFromError renders a Go error crossing the wire as a RemoteErrorShape,
// preserving Name/Stack if it already is a *RemoteError (round-tripped
// unchanged) or a local typed error (so the peer sees the right name).
func shapeFromError(err error) *wire.RemoteErrorShape {
	var re *RemoteError
	if errors.As(err, &re) {
		return &wire.RemoteErrorShape{Name: re.Name, Message: re.Message, Stack: re.Stack}
	}
	var refErr *ReferenceError
	if errors.As(err, &refErr) {
		return &wire.RemoteErrorShape{Name: "ReferenceError", Message: err.Error()}
	}
	var typeErr *TypeError
	if errors.As(err, &typeErr) {
		return &wire.RemoteErrorShape{Name: "TypeError", Message: err.Error()}
	}
	return &wire.RemoteErrorShape{Name: "Error", Message: err.Error()}
}

// ReferenceError reports a call/property access naming an unknown local id,
// or a property value naming an unknown target (spec §7 "Reference error").
type ReferenceError struct {
	ID wire.ID
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("rpcconn: no local object registered at id %d", e.ID)
}

// Is reports whether this error matches the target error. It supports
// errors.Is(err, ErrReference).
func (e *ReferenceError) Is(target error) bool { return target == ErrReference }

// TypeError reports a get/set without a property name, a call on a
// non-callable target, or invocation of a non-function member (spec §7
// "Type error").
type TypeError struct {
	Reason string
}

func (e *TypeError) Error() string { return fmt.Sprintf("rpcconn: type error: %s", e.Reason) }

// Is reports whether this error matches the target error. It supports
// errors.Is(err, ErrType).
func (e *TypeError) Is(target error) bool { return target == ErrType }

// NonCloneableError is a structural violation found during debug-mode
// pre-send traversal: a callable, then-able, proxy marker, or transfer
// marker at a nonempty path in shallow-send mode (spec §7 "Non-cloneable
// error").
type NonCloneableError struct {
	ValueType string // "function", "promise", "proxy", "transfer", "class-instance"
	Path      string
}

func (e *NonCloneableError) Error() string {
	return fmt.Sprintf("rpcconn: non-cloneable %s found at path %q in shallow-send mode", e.ValueType, e.Path)
}

// Is reports whether this error matches the target error. It supports
// errors.Is(err, ErrNonCloneable).
func (e *NonCloneableError) Is(target error) bool { return target == ErrNonCloneable }

// ErrConnectionClosed is the error pending calls and pending promises are
// rejected with when the owning Connection closes (spec §4.8 "orphaned").
var ErrConnectionClosed = errors.New("rpcconn: connection closed")
