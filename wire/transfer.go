package wire

// Transferable is a transport-level resource whose ownership moves to the
// peer on send instead of being copied (spec §4.1, §3 invariant 6).
type Transferable any
