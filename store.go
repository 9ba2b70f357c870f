package pantry

import (
	"context"
	"time"
)

// ExpiryFilter selects entries by their expiry state relative to
// [Query.Now].
type ExpiryFilter int

const (
	// ExpiryAny matches every entry regardless of expiry.
	ExpiryAny ExpiryFilter = iota
	// ExpiryValid matches entries with ExpiresAt >= Now.
	ExpiryValid
	// ExpiryExpired matches entries with ExpiresAt < Now.
	ExpiryExpired
)

// Query narrows bulk store operations to a partition, an expiry state,
// or both. The zero Query matches every entry.
type Query struct {
	// Partition restricts the operation to one partition. Empty matches
	// all partitions.
	Partition string

	// Expiry restricts the operation by expiry state, evaluated
	// against Now.
	Expiry ExpiryFilter

	// Now is the instant Expiry is evaluated at. Required whenever
	// Expiry is not ExpiryAny.
	Now time.Time
}

// Capabilities describes the limits a Store declares. The engine
// truncates partition and key strings to the declared lengths before
// hashing and storing, and validates parent key lists against
// MaxParentKeys before writing.
type Capabilities struct {
	// MaxPartitionLen and MaxKeyLen are maximum lengths in bytes.
	// Non-positive means unbounded. Truncation never splits a UTF-8
	// sequence.
	MaxPartitionLen int
	MaxKeyLen       int

	// MaxParentKeys is the maximum number of parent keys per entry.
	// Zero means parent keys are not supported; negative means
	// unlimited.
	MaxParentKeys int

	// Peekable reports whether the store can serve reads that must not
	// write, which Peek and PeekItem require.
	Peekable bool
}

// Store is the persistence contract behind a Cache. Implementations
// must be safe for concurrent use. Expiry is the engine's concern:
// stores return entries as stored and only interpret expiry when a
// Query asks them to filter by it.
type Store interface {
	// Capabilities returns the store's declared limits. The engine
	// reads them once at construction.
	Capabilities() Capabilities

	// Upsert atomically inserts the entry or replaces the one with the
	// same fingerprint. When two writers race on one fingerprint,
	// exactly one entry survives; which one is implementation-defined.
	// A parent key naming no existing entry in the partition fails the
	// whole write.
	Upsert(ctx context.Context, e Entry) error

	// Read returns the entry with the given fingerprint. The second
	// return is false when no such entry exists.
	Read(ctx context.Context, fp uint64) (Entry, bool, error)

	// Delete removes the entry with the given fingerprint along with
	// every entry that transitively lists it as a parent. It returns
	// whether the entry existed.
	Delete(ctx context.Context, fp uint64) (bool, error)

	// DeleteWhere removes every entry matching q, cascading to
	// dependents of the removed entries. It returns the number of
	// matching entries removed; dependents removed by cascade are not
	// counted.
	DeleteWhere(ctx context.Context, q Query) (int64, error)

	// Count returns the number of entries matching q.
	Count(ctx context.Context, q Query) (int64, error)

	// Scan calls fn for each entry matching q, stopping at the first
	// error, which it returns unwrapped. Iteration order is
	// unspecified.
	Scan(ctx context.Context, q Query, fn func(Entry) error) error

	// SizeEstimate returns a best-effort count of stored payload bytes.
	SizeEstimate(ctx context.Context) (int64, error)

	// Close releases the store's resources.
	Close() error
}

// Vacuumer is implemented by stores that can compact their underlying
// storage. [Cache.Vacuum] forwards to it and reports ErrNotSupported
// for stores without it.
type Vacuumer interface {
	Vacuum(ctx context.Context) error
}
