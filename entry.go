package pantry

import "time"

// Entry is the stored form of a cached value, the unit every Store
// persists and returns. The engine produces entries; stores treat them
// as opaque records apart from the fields their schema indexes.
type Entry struct {
	// Fingerprint is the 64-bit lookup key derived from the partition
	// and key. See [Fingerprint].
	Fingerprint uint64

	// Partition and Key are the caller's strings, truncated to the
	// store's declared maximum lengths. They are kept verbatim beyond
	// truncation; no case folding or normalization is applied.
	Partition string
	Key       string

	// Value is the encoded payload and Compressed records whether it
	// passed through the Compressor.
	Value      []byte
	Compressed bool

	// CreatedAt and ExpiresAt are UTC instants. ExpiresAt never
	// precedes CreatedAt in a stored entry.
	CreatedAt time.Time
	ExpiresAt time.Time

	// Interval is the sliding renewal amount. Zero means the entry is
	// timed and reads never move its expiry.
	Interval time.Duration

	// ParentKeys lists same-partition keys this entry depends on, in
	// caller order. Deleting any of them deletes this entry.
	ParentKeys []string
}

// Expired reports whether the entry is expired at now. An entry whose
// expiry equals now is still valid; only instants strictly before now
// are expired.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}

// Sliding reports whether non-peek reads renew the entry's expiry.
func (e Entry) Sliding() bool {
	return e.Interval > 0
}
