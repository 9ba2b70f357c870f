package pantry

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// setConfig holds per-write options.
type setConfig struct {
	parents []string
}

// SetOption configures a single write.
type SetOption func(*setConfig)

// WithParentKeys makes the entry depend on other keys in the same
// partition. When any of them is removed, explicitly or by eviction,
// this entry is removed with it. Every named key must already exist in
// the partition or the write fails at the store.
func WithParentKeys(keys ...string) SetOption {
	return func(c *setConfig) { c.parents = append(c.parents, keys...) }
}

// SetSliding stores value under partition and key with a sliding
// expiry: the entry lives for interval past its last non-peek read.
// The interval must be positive.
func (c *Cache) SetSliding(ctx context.Context, partition, key string, value any, interval time.Duration, opts ...SetOption) error {
	if interval <= 0 {
		return errors.Wrapf(ErrInvalidInterval, "interval %s", interval)
	}
	now := c.now()
	return c.set(ctx, partition, key, value, now, now.Add(interval), interval, opts)
}

// SetStatic stores value with the cache-wide static interval, a long
// sliding expiry for entries that should effectively stay until
// removed. See [WithStaticInterval].
func (c *Cache) SetStatic(ctx context.Context, partition, key string, value any, opts ...SetOption) error {
	now := c.now()
	return c.set(ctx, partition, key, value, now, now.Add(c.staticInterval), c.staticInterval, opts)
}

// SetTimed stores value with a fixed lifetime from now. Reads never
// extend it. A non-positive lifetime stores an entry that expires
// immediately after now.
func (c *Cache) SetTimed(ctx context.Context, partition, key string, value any, lifetime time.Duration, opts ...SetOption) error {
	now := c.now()
	return c.set(ctx, partition, key, value, now, now.Add(lifetime), 0, opts)
}

// SetTimedAt stores value expiring at the given instant. Reads never
// extend it. An instant already past is floored to now.
func (c *Cache) SetTimedAt(ctx context.Context, partition, key string, value any, expiresAt time.Time, opts ...SetOption) error {
	return c.set(ctx, partition, key, value, c.now(), expiresAt, 0, opts)
}

// set validates, encodes outside the store, and performs one atomic
// upsert. Encoding errors propagate; storage failures are absorbed.
func (c *Cache) set(ctx context.Context, partition, key string, value any, now, expiresAt time.Time, interval time.Duration, opts []SetOption) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	p, k, err := c.names(partition, key)
	if err != nil {
		return err
	}
	var sc setConfig
	for _, opt := range opts {
		opt(&sc)
	}
	parents, err := c.parents(sc.parents)
	if err != nil {
		return err
	}
	data, compressed, err := c.codec.encode(value)
	if err != nil {
		return err
	}

	e := Entry{
		Fingerprint: Fingerprint(p, k),
		Partition:   p,
		Key:         k,
		Value:       data,
		Compressed:  compressed,
		CreatedAt:   now,
		ExpiresAt:   ceilExpiry(floorExpiry(now, expiresAt)).UTC(),
		Interval:    interval,
		ParentKeys:  parents,
	}
	if err := c.store.Upsert(ctx, e); err != nil {
		return c.fail(ctx, "upsert", p, k, err)
	}
	c.stats.writes.Add(1)
	return nil
}
