package pantry

import "github.com/cockroachdb/errors"

// Errors returned by Cache operations fall into two groups. Precondition
// and capability errors below are returned to the caller. Storage
// failures never are: the operation degrades (reads miss, writes no-op,
// counts report zero) and the failure is recorded in [Cache.LastError]
// and the Errors counter.
var (
	// ErrInvalidPartition reports an empty or all-whitespace partition.
	ErrInvalidPartition = errors.New("pantry: partition must not be empty")

	// ErrInvalidKey reports an empty or all-whitespace key.
	ErrInvalidKey = errors.New("pantry: key must not be empty")

	// ErrInvalidInterval reports a non-positive sliding interval.
	ErrInvalidInterval = errors.New("pantry: sliding interval must be positive")

	// ErrTooManyParents reports a parent key list longer than the store
	// allows.
	ErrTooManyParents = errors.New("pantry: too many parent keys")

	// ErrEmptyParentKey reports an empty or all-whitespace parent key.
	ErrEmptyParentKey = errors.New("pantry: parent key must not be empty")

	// ErrNilFactory reports a nil factory or loader function.
	ErrNilFactory = errors.New("pantry: factory must not be nil")

	// ErrNotSerializable reports a value the configured Serializer or
	// Compressor could not encode. Functions, channels and complex
	// numbers are typical causes with the default msgpack serializer.
	ErrNotSerializable = errors.New("pantry: value cannot be serialized")

	// ErrNotSupported reports an operation the backing store does not
	// implement, such as Peek on a store whose capabilities exclude it
	// or Vacuum on a store without compaction.
	ErrNotSupported = errors.New("pantry: operation not supported by store")

	// ErrClosed reports use of a Cache after Close.
	ErrClosed = errors.New("pantry: cache is closed")

	// ErrCorruptEntry marks a stored payload that could not be decoded.
	// It is never returned from a read, which degrades to a miss; the
	// marked error is observable through [Cache.LastError].
	ErrCorruptEntry = errors.New("pantry: stored entry cannot be decoded")
)
