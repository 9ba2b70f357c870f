package pantry

import (
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint derives the 64-bit lookup key for a partition and key:
// the low 32 bits of the partition's xxhash64 in the high half, the low
// 32 bits of the key's xxhash64 in the low half. The composition is
// deterministic and stable across processes, so fingerprints computed
// by different instances over the same backing store agree.
//
// Both strings must already be truncated to the store's declared
// maximum lengths; the engine does this before calling. Distinct pairs
// can collide; a collision makes the entries overwrite each other,
// which the cache tolerates and does not detect.
func Fingerprint(partition, key string) uint64 {
	hi := uint32(xxhash.Sum64String(partition))
	lo := uint32(xxhash.Sum64String(key))
	return uint64(hi)<<32 | uint64(lo)
}

// truncate cuts s to at most max bytes without splitting a UTF-8
// sequence. Non-positive max leaves s untouched.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
