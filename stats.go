package pantry

import "sync/atomic"

// Stats is a point-in-time snapshot of a cache's activity counters.
// Counters are monotonic over the life of the Cache and approximate
// under concurrency; they exist for observability, not accounting.
type Stats struct {
	// Hits counts single reads that found a valid entry.
	Hits int64
	// Misses counts single reads that found nothing valid.
	Misses int64
	// Writes counts successful upserts, renewals excluded.
	Writes int64
	// Evictions counts expired entries removed lazily or by sweeps.
	Evictions int64
	// Errors counts swallowed storage failures and corrupt payloads.
	Errors int64
}

// counters is the live atomic backing for Stats.
type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	writes    atomic.Int64
	evictions atomic.Int64
	errors    atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Writes:    c.writes.Load(),
		Evictions: c.evictions.Load(),
		Errors:    c.errors.Load(),
	}
}
