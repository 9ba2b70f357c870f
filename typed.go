package pantry

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Item pairs a decoded value with its stored metadata.
type Item[T any] struct {
	Partition  string
	Key        string
	Value      T
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Interval   time.Duration
	ParentKeys []string
}

func itemFromEntry[T any](e Entry, v T) Item[T] {
	return Item[T]{
		Partition:  e.Partition,
		Key:        e.Key,
		Value:      v,
		CreatedAt:  e.CreatedAt,
		ExpiresAt:  e.ExpiresAt,
		Interval:   e.Interval,
		ParentKeys: e.ParentKeys,
	}
}

// Get retrieves a typed value from the cache. It decodes the stored
// payload directly into T, so struct values come back as structs rather
// than the generic shapes the untyped [Cache.Get] produces. Go does not
// allow generic methods on interfaces or concrete types used through
// them, hence the package-level function.
func Get[T any](ctx context.Context, c *Cache, partition, key string) (Option[T], error) {
	e, found, err := c.read(ctx, partition, key, true)
	if err != nil || !found {
		return None[T](), err
	}
	var v T
	if err := c.decodeEntry(ctx, e, &v); err != nil {
		return None[T](), nil
	}
	return Some(v), nil
}

// GetItem retrieves a typed value plus its stored metadata. The expiry
// in the returned item reflects the renewal this read performed, when
// there was one.
func GetItem[T any](ctx context.Context, c *Cache, partition, key string) (Option[Item[T]], error) {
	e, found, err := c.read(ctx, partition, key, true)
	if err != nil || !found {
		return None[Item[T]](), err
	}
	var v T
	if err := c.decodeEntry(ctx, e, &v); err != nil {
		return None[Item[T]](), nil
	}
	return Some(itemFromEntry(e, v)), nil
}

// Peek retrieves a typed value without renewing its expiry or evicting
// anything. It returns ErrNotSupported when the store cannot peek.
func Peek[T any](ctx context.Context, c *Cache, partition, key string) (Option[T], error) {
	if err := c.peekGuard(); err != nil {
		return None[T](), err
	}
	e, found, err := c.read(ctx, partition, key, false)
	if err != nil || !found {
		return None[T](), err
	}
	var v T
	if err := c.decodeEntry(ctx, e, &v); err != nil {
		return None[T](), nil
	}
	return Some(v), nil
}

// PeekItem is Peek plus the entry's stored metadata.
func PeekItem[T any](ctx context.Context, c *Cache, partition, key string) (Option[Item[T]], error) {
	if err := c.peekGuard(); err != nil {
		return None[Item[T]](), err
	}
	e, found, err := c.read(ctx, partition, key, false)
	if err != nil || !found {
		return None[Item[T]](), err
	}
	var v T
	if err := c.decodeEntry(ctx, e, &v); err != nil {
		return None[Item[T]](), nil
	}
	return Some(itemFromEntry(e, v)), nil
}

// Items returns a snapshot of the valid entries in partition, or in
// every partition when partition is empty. Bulk reads never renew
// sliding expiries, no matter how many entries they return. Entries
// whose payload fails to decode are skipped and recorded in LastError.
func Items[T any](ctx context.Context, c *Cache, partition string) ([]Item[T], error) {
	if err := c.guard(ctx); err != nil {
		return nil, err
	}
	if partition != "" {
		partition = truncate(partition, c.caps.MaxPartitionLen)
	}
	q := Query{Partition: partition, Expiry: ExpiryValid, Now: c.now()}
	var items []Item[T]
	err := c.store.Scan(ctx, q, func(e Entry) error {
		var v T
		if err := c.codec.decode(e, &v); err != nil {
			c.stats.errors.Add(1)
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
			return nil
		}
		items = append(items, itemFromEntry(e, v))
		return nil
	})
	if err != nil {
		return nil, c.fail(ctx, "scan", partition, "", err)
	}
	return items, nil
}

// Factory produces a value for a key on a cache miss.
type Factory[T any] func(ctx context.Context) (T, error)

// GetOrSetSliding returns the cached value under partition and key or,
// on a miss, invokes factory and stores its result with a sliding
// expiry. The factory runs at most once per call and its value is
// returned even when the subsequent write is absorbed by a failing
// store. Factory errors propagate and nothing is stored.
func GetOrSetSliding[T any](ctx context.Context, c *Cache, partition, key string, interval time.Duration, factory Factory[T], opts ...SetOption) (T, error) {
	if interval <= 0 {
		var zero T
		return zero, errors.Wrapf(ErrInvalidInterval, "interval %s", interval)
	}
	return getOrSet(ctx, c, partition, key, factory, func(v T) error {
		return c.SetSliding(ctx, partition, key, v, interval, opts...)
	})
}

// GetOrSetStatic is GetOrSetSliding with the cache-wide static
// interval.
func GetOrSetStatic[T any](ctx context.Context, c *Cache, partition, key string, factory Factory[T], opts ...SetOption) (T, error) {
	return getOrSet(ctx, c, partition, key, factory, func(v T) error {
		return c.SetStatic(ctx, partition, key, v, opts...)
	})
}

// GetOrSetTimed is GetOrSetSliding with a fixed lifetime instead of a
// sliding one.
func GetOrSetTimed[T any](ctx context.Context, c *Cache, partition, key string, lifetime time.Duration, factory Factory[T], opts ...SetOption) (T, error) {
	return getOrSet(ctx, c, partition, key, factory, func(v T) error {
		return c.SetTimed(ctx, partition, key, v, lifetime, opts...)
	})
}

// GetOrSetTimedAt is GetOrSetSliding with a fixed expiry instant.
func GetOrSetTimedAt[T any](ctx context.Context, c *Cache, partition, key string, expiresAt time.Time, factory Factory[T], opts ...SetOption) (T, error) {
	return getOrSet(ctx, c, partition, key, factory, func(v T) error {
		return c.SetTimedAt(ctx, partition, key, v, expiresAt, opts...)
	})
}

func getOrSet[T any](ctx context.Context, c *Cache, partition, key string, factory Factory[T], set func(T) error) (T, error) {
	var zero T
	if factory == nil {
		return zero, ErrNilFactory
	}
	got, err := Get[T](ctx, c, partition, key)
	if err != nil {
		return zero, err
	}
	if v, ok := got.Get(); ok {
		return v, nil
	}
	v, err := factory(ctx)
	if err != nil {
		return zero, err
	}
	if err := set(v); err != nil {
		return zero, err
	}
	return v, nil
}
