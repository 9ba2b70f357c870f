package pantry

import (
	"math"
	"time"
)

// DefaultStaticInterval is the sliding interval applied to static
// writes when the Cache is built without [WithStaticInterval].
const DefaultStaticInterval = 30 * 24 * time.Hour

// floorExpiry keeps an entry's expiry from preceding its creation. A
// write whose target instant is already past stores an entry that is
// valid at now for exactly that instant and evicted by the next later
// read.
func floorExpiry(now, at time.Time) time.Time {
	if at.Before(now) {
		return now
	}
	return at
}

// maxExpiry is the latest instant the stores can hold: expiry
// timestamps persist as nanosecond int64 columns, which run out in
// April 2262.
var maxExpiry = time.Unix(0, math.MaxInt64).UTC()

// ceilExpiry caps a far-future expiry at maxExpiry. time.Time reaches
// centuries past what the columns can represent; an uncapped instant
// would wrap negative at rest and read back as long expired.
func ceilExpiry(at time.Time) time.Time {
	if at.After(maxExpiry) {
		return maxExpiry
	}
	return at
}

// renewal returns the pushed-out expiry for an entry read at now and
// whether the entry renews at all. Timed entries never renew.
func renewal(e Entry, now time.Time) (time.Time, bool) {
	if !e.Sliding() {
		return e.ExpiresAt, false
	}
	return ceilExpiry(now.Add(e.Interval)), true
}
