package pantry

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Get returns the value stored under partition and key. A sliding
// entry's expiry is pushed out by its interval. Serialized payloads
// decode into generic msgpack shapes (maps, slices); use the
// package-level [Get] function for concrete types.
func (c *Cache) Get(ctx context.Context, partition, key string) (Option[any], error) {
	return Get[any](ctx, c, partition, key)
}

// GetItem is Get plus the entry's stored metadata. The returned expiry
// reflects the renewal this read performed, when there was one.
func (c *Cache) GetItem(ctx context.Context, partition, key string) (Option[Item[any]], error) {
	return GetItem[any](ctx, c, partition, key)
}

// Peek returns the value without touching the store's state: no
// renewal, no lazy eviction. It returns ErrNotSupported when the
// backing store's capabilities exclude peeking.
func (c *Cache) Peek(ctx context.Context, partition, key string) (Option[any], error) {
	return Peek[any](ctx, c, partition, key)
}

// PeekItem is Peek plus the entry's stored metadata.
func (c *Cache) PeekItem(ctx context.Context, partition, key string) (Option[Item[any]], error) {
	return PeekItem[any](ctx, c, partition, key)
}

// Contains reports whether a valid entry exists under partition and
// key. It never renews a sliding expiry and never writes.
func (c *Cache) Contains(ctx context.Context, partition, key string) (bool, error) {
	_, found, err := c.read(ctx, partition, key, false)
	return found, err
}

// read is the shared single-entry read path. With renew set it lazily
// evicts an expired entry and pushes out a sliding expiry; without it
// the store is left untouched.
func (c *Cache) read(ctx context.Context, partition, key string, renew bool) (Entry, bool, error) {
	if err := c.guard(ctx); err != nil {
		return Entry{}, false, err
	}
	p, k, err := c.names(partition, key)
	if err != nil {
		return Entry{}, false, err
	}

	e, found, err := c.store.Read(ctx, Fingerprint(p, k))
	if err != nil {
		if err := c.fail(ctx, "read", p, k, err); err != nil {
			return Entry{}, false, err
		}
		c.stats.misses.Add(1)
		return Entry{}, false, nil
	}
	if !found {
		c.stats.misses.Add(1)
		return Entry{}, false, nil
	}

	now := c.now()
	if e.Expired(now) {
		if renew {
			// Lazy eviction; dependents go with it.
			if _, err := c.store.Delete(ctx, e.Fingerprint); err != nil {
				if err := c.fail(ctx, "evict", p, k, err); err != nil {
					return Entry{}, false, err
				}
			} else {
				c.stats.evictions.Add(1)
			}
		}
		c.stats.misses.Add(1)
		return Entry{}, false, nil
	}

	if renew {
		if at, ok := renewal(e, now); ok {
			renewed := e
			renewed.ExpiresAt = at
			if err := c.store.Upsert(ctx, renewed); err != nil {
				// The value was read fine; only the renewal is lost.
				if err := c.fail(ctx, "renew", p, k, err); err != nil {
					return Entry{}, false, err
				}
			} else {
				e = renewed
			}
		}
	}

	c.stats.hits.Add(1)
	return e, true, nil
}

// peekGuard rejects peeking on stores that cannot serve it.
func (c *Cache) peekGuard() error {
	if !c.caps.Peekable {
		return errors.Wrap(ErrNotSupported, "peek")
	}
	return nil
}

// decodeEntry decodes e into dst. A payload that cannot be decoded is
// removed from the store so the next write starts clean; the failure is
// recorded and the read degrades to a miss.
func (c *Cache) decodeEntry(ctx context.Context, e Entry, dst any) error {
	err := c.codec.decode(e, dst)
	if err == nil {
		return nil
	}
	c.stats.errors.Add(1)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.log.Warn("corrupt cache entry removed",
		zap.String("partition", e.Partition),
		zap.String("key", e.Key),
		zap.Error(err))
	if _, derr := c.store.Delete(ctx, e.Fingerprint); derr != nil && ctx.Err() == nil {
		c.log.Warn("corrupt cache entry could not be removed",
			zap.String("partition", e.Partition),
			zap.String("key", e.Key),
			zap.Error(derr))
	}
	return err
}
