package wire

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Digest returns a short, non-cryptographic correlation id for an encoded
// Envelope, used only in log lines so related send/receive pairs can be
// grepped together. It is not part of the protocol and is never compared
// for equality against anything received from the peer.
//
// Same cache-key idiom as internal/service/policy_service.go's xxhash-based
// CEL evaluation cache key, applied here to log correlation instead of
// caching.
func Digest(encoded []byte) string {
	return strconv.FormatUint(xxhash.Sum64(encoded), 16)
}
