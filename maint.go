package pantry

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// readConfig holds options for counting operations.
type readConfig struct {
	includeExpired bool
}

// ReadOption configures Count and CountPartition.
type ReadOption func(*readConfig)

// IncludeExpired widens a count to entries whose expiry has already
// passed but which no read or sweep has removed yet.
func IncludeExpired() ReadOption {
	return func(c *readConfig) { c.includeExpired = true }
}

// Remove deletes the entry under partition and key along with every
// entry that transitively lists it as a parent. Removing an absent
// entry is a no-op.
func (c *Cache) Remove(ctx context.Context, partition, key string) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	p, k, err := c.names(partition, key)
	if err != nil {
		return err
	}
	if _, err := c.store.Delete(ctx, Fingerprint(p, k)); err != nil {
		return c.fail(ctx, "delete", p, k, err)
	}
	return nil
}

// Clear removes every entry in every partition and returns how many
// were removed.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	return c.clear(ctx, "")
}

// ClearPartition removes every entry in one partition and returns how
// many were removed.
func (c *Cache) ClearPartition(ctx context.Context, partition string) (int64, error) {
	if strings.TrimSpace(partition) == "" {
		return 0, ErrInvalidPartition
	}
	return c.clear(ctx, truncate(partition, c.caps.MaxPartitionLen))
}

func (c *Cache) clear(ctx context.Context, partition string) (int64, error) {
	if err := c.guard(ctx); err != nil {
		return 0, err
	}
	n, err := c.store.DeleteWhere(ctx, Query{Partition: partition})
	if err != nil {
		return 0, c.fail(ctx, "clear", partition, "", err)
	}
	return n, nil
}

// Count returns the number of valid entries across all partitions.
// Pass [IncludeExpired] to count expired ones too.
func (c *Cache) Count(ctx context.Context, opts ...ReadOption) (int64, error) {
	return c.count(ctx, "", opts)
}

// CountPartition returns the number of valid entries in one partition.
func (c *Cache) CountPartition(ctx context.Context, partition string, opts ...ReadOption) (int64, error) {
	if strings.TrimSpace(partition) == "" {
		return 0, ErrInvalidPartition
	}
	return c.count(ctx, truncate(partition, c.caps.MaxPartitionLen), opts)
}

func (c *Cache) count(ctx context.Context, partition string, opts []ReadOption) (int64, error) {
	if err := c.guard(ctx); err != nil {
		return 0, err
	}
	var rc readConfig
	for _, opt := range opts {
		opt(&rc)
	}
	q := Query{Partition: partition, Expiry: ExpiryValid, Now: c.now()}
	if rc.includeExpired {
		q.Expiry = ExpiryAny
	}
	n, err := c.store.Count(ctx, q)
	if err != nil {
		return 0, c.fail(ctx, "count", partition, "", err)
	}
	return n, nil
}

// EvictExpired removes every expired entry and returns how many the
// sweep matched. Valid entries whose parents were expired are removed
// by cascade and not counted. The janitor runs this on its ticker;
// callers without a janitor can run it directly.
func (c *Cache) EvictExpired(ctx context.Context) (int64, error) {
	if err := c.guard(ctx); err != nil {
		return 0, err
	}
	n, err := c.store.DeleteWhere(ctx, Query{Expiry: ExpiryExpired, Now: c.now()})
	if err != nil {
		return 0, c.fail(ctx, "evict", "", "", err)
	}
	c.stats.evictions.Add(n)
	return n, nil
}

// SizeBytes returns the store's estimate of stored payload bytes. It
// counts encoded values, not index or schema overhead.
func (c *Cache) SizeBytes(ctx context.Context) (int64, error) {
	if err := c.guard(ctx); err != nil {
		return 0, err
	}
	n, err := c.store.SizeEstimate(ctx)
	if err != nil {
		return 0, c.fail(ctx, "size", "", "", err)
	}
	return n, nil
}

// Vacuum compacts the backing store when it supports compaction
// (SQLite does) and returns ErrNotSupported otherwise.
func (c *Cache) Vacuum(ctx context.Context) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	v, ok := c.store.(Vacuumer)
	if !ok {
		return errors.Wrap(ErrNotSupported, "vacuum")
	}
	if err := v.Vacuum(ctx); err != nil {
		return c.fail(ctx, "vacuum", "", "", err)
	}
	return nil
}
