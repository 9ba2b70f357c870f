// Package pantry provides a partition-scoped key-value cache with
// pluggable backing stores and type-safe generic helpers.
//
// # Partitions and Keys
//
// Every entry lives under a (partition, key) pair of strings. Lookups
// go through a 64-bit fingerprint: the partition's hash in the high 32
// bits, the key's in the low 32 (see [Fingerprint]). Strings longer
// than the store's declared limits are truncated before hashing and
// storing, so two keys that agree on their truncated prefix are the
// same entry. Partitions are namespaces, nothing more; clearing or
// counting one never touches another. Callers without a natural
// partition conventionally use [DefaultPartition].
//
// # Expiry
//
// A write chooses one of four policies:
//
//   - [Cache.SetSliding] — the entry lives for an interval past its
//     last non-peek read. Every Get pushes the expiry out again.
//   - [Cache.SetStatic] — sliding with the cache-wide static interval
//     (30 days unless [WithStaticInterval] says otherwise). For entries
//     that should effectively stay until removed.
//   - [Cache.SetTimed] — a fixed lifetime from now. Reads never extend it.
//   - [Cache.SetTimedAt] — a fixed expiry instant. Instants already
//     past are floored to now.
//
// An entry is expired only when its expiry is strictly before now; an
// entry read at exactly its expiry instant is still served. Expired
// entries are evicted lazily when a renewing read encounters them, by
// [Cache.EvictExpired] sweeps, and by the optional background janitor
// ([WithJanitor]).
//
// # Parent Keys
//
// An entry may declare parent keys in its own partition with
// [WithParentKeys]. Removing an entry, explicitly or by eviction,
// also removes every entry that transitively depends on it:
//
//	c.SetStatic(ctx, "site", "config", cfg)
//	c.SetStatic(ctx, "site", "config/render", html, pantry.WithParentKeys("config"))
//	c.Remove(ctx, "site", "config")   // removes config/render too
//
// Parents must exist when the dependent is written; a write naming a
// missing parent is rejected by the store and absorbed like any other
// storage failure.
//
// # Stores
//
// The [Store] interface is the persistence contract. Four
// implementations ship with the module:
//
//   - memstore — an in-process map. Fastest, nothing survives a
//     restart. Also the reference implementation for the contract.
//   - sqlitestore — SQLite via modernc.org/sqlite (pure Go, no CGO),
//     in a volatile in-memory database or a file that survives
//     restarts. Supports [Cache.Vacuum].
//   - mysqlstore — MySQL/InnoDB for caches shared between processes.
//   - mssqlstore — SQL Server, same shape as mysqlstore.
//
// tieredstore chains any of them, a fast front tier over an
// authoritative back tier, promoting entries on read.
//
// Stores declare [Capabilities]: maximum partition and key lengths, the
// parent key limit, and whether they can serve [Cache.Peek].
//
// # Typed Access
//
// Cache methods traffic in [any] because Go does not allow generic
// methods. The package-level generic functions decode straight into
// concrete types:
//
//	opt, err := pantry.Get[User](ctx, c, "users", "123")
//	if u, ok := opt.Get(); ok {
//	    ...
//	}
//
// [GetOrSetSliding] and friends combine lookup and population; their
// factory runs at most once per call. [Load] goes further and
// collapses concurrent loads of the same entry into one:
//
//	u, err := pantry.Load(ctx, c, "users", "123",
//	    func(ctx context.Context) (User, error) {
//	        return queries.GetUser(ctx, 123)
//	    })
//
// [Items] returns a bulk snapshot of a partition's valid entries
// without renewing any of them.
//
// # Failure Handling
//
// The cache treats its store as expendable. A failing read degrades to
// a miss, a failing write to a no-op and a failing count to zero; the
// caller's flow is never interrupted by storage trouble. Absorbed
// failures are logged through the configured zap logger, counted in
// [Cache.Stats] and kept in [Cache.LastError] for inspection.
//
// Errors that do surface are the caller's own: invalid partitions,
// keys, intervals or parent lists, values the serializer rejects
// ([ErrNotSerializable]), operations the store cannot perform
// ([ErrNotSupported]), use after Close ([ErrClosed]), a cancelled
// context, and whatever a factory or loader returns.
//
// # Serialization
//
// Values are encoded with msgpack
// ([github.com/vmihailenco/msgpack/v5]) and, at or above a size
// threshold (4 KiB by default), compressed with snappy. Both halves are
// swappable via [WithSerializer] and [WithCompressor], and the
// threshold via [WithCompressionThreshold]. Encoding always happens
// outside store transactions, so large values cost marshal time but
// never lock time.
package pantry
