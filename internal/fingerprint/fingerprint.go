// Package fingerprint derives the short deterministic key used for
// duplicate suppression (spec.md §3, "Fingerprint").
package fingerprint

import (
	"encoding/base32"
	"strconv"

	"github.com/zeebo/blake3"
)

// domainKey separates fingerprints from any other BLAKE3-keyed use in
// the process; it is a fixed constant, not a secret — fingerprints are
// explicitly not security-sensitive (spec.md §3).
var domainKey = [32]byte{
	'e', 'r', 'r', 'w', 'e', 'b', 'h', 'o', 'o', 'k', '.', 'f', 'i', 'n', 'g', 'e',
	'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Of derives a fingerprint from (message, file, line). Equal triples
// always produce equal fingerprints; the derivation does not look at
// the stack trace, so cosmetic variation in interpolated message
// values that share a call site will alias — spec.md accepts this.
func Of(message, file string, line int) string {
	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		// Keyed init only fails on a malformed key, which domainKey is
		// not; panicking here would turn a build-time constant mistake
		// into a worse production failure than a degraded fingerprint.
		hasher = blake3.New()
	}

	hasher.Write([]byte(message))
	hasher.Write([]byte{0})
	hasher.Write([]byte(file))
	hasher.Write([]byte{0})
	hasher.Write([]byte(strconv.Itoa(line)))

	sum := hasher.Sum(nil)
	// 10 bytes of BLAKE3 output, base32-encoded, is enough entropy to
	// make accidental collisions between distinct call sites
	// vanishingly unlikely while staying short enough to log and key
	// maps with.
	return encoding.EncodeToString(sum[:10])
}
