// Package wire defines the on-the-wire message and value shapes exchanged
// between two peers of a Connection. The serializer/deserializer that
// rewrites a Go value graph to and from these shapes lives in the root
// package (encode.go/decode.go).
package wire

// TagKey is the reserved property name used to discriminate a wire Value
// from an ordinary piece of application data. It is deliberately short and
// unlikely to collide with real field names.
const TagKey = "@rpc"

// Tag identifies the variant of a tagged wire Value.
type Tag string

const (
	// TagProxy marks a reference to a peer-owned target.
	TagProxy Tag = "proxy"
	// TagPromise marks a placeholder for a deferred value.
	TagPromise Tag = "promise"
	// TagProperty marks a not-yet-read property access.
	TagProperty Tag = "property"
	// TagThrown marks an error surfaced inline in a value position.
	TagThrown Tag = "thrown"
	// TagNode marks a plain container (array/object) with derivable
	// reference identity, tagged with a traversal-local sequence number.
	TagNode Tag = "node"
	// TagRef marks a back-reference to a TagNode emitted earlier in the
	// same traversal.
	TagRef Tag = "ref"
)

// Kind discriminates an Envelope's message kind (spec §4.5).
type Kind string

const (
	KindCall    Kind = "call"
	KindReturn  Kind = "return"
	KindThrow   Kind = "throw"
	KindResolve Kind = "resolve"
	KindReject  Kind = "reject"
	KindRelease Kind = "release"
	KindHandler Kind = "handler"
)

// Action discriminates the action of a KindCall Envelope.
type Action string

const (
	ActionCall Action = "call"
	ActionGet  Action = "get"
	ActionSet  Action = "set"
)

// ID is the single id space shared by local objects, outgoing promises, and
// outgoing call requests (spec §3, "Id space").
type ID uint64

// HandshakeID is the reserved id used for the initial handshake return. The
// exposing side's root object occupies id 0 in its own local registry;
// Wrap's id counter starts at 1 so the two never collide.
const HandshakeID ID = 0
