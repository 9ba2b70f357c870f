package pantry

import (
	"context"
	"reflect"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// loadConfig holds per-load options. The set flags distinguish an
// explicit zero from an absent option.
type loadConfig struct {
	sliding     time.Duration
	slidingSet  bool
	lifetime    time.Duration
	lifetimeSet bool
	parents     []string
}

// LoadOption configures Load.
type LoadOption func(*loadConfig)

// LoadSliding stores loaded values with a sliding expiry instead of the
// static default. The interval must be positive, as for [Cache.SetSliding].
func LoadSliding(interval time.Duration) LoadOption {
	return func(c *loadConfig) { c.sliding, c.slidingSet = interval, true }
}

// LoadTimed stores loaded values with a fixed lifetime instead of the
// static default. Like [Cache.SetTimed], a non-positive lifetime stores
// an entry that expires immediately.
func LoadTimed(lifetime time.Duration) LoadOption {
	return func(c *loadConfig) { c.lifetime, c.lifetimeSet = lifetime, true }
}

// LoadParentKeys attaches parent keys to loaded values, as
// [WithParentKeys] does for direct writes.
func LoadParentKeys(keys ...string) LoadOption {
	return func(c *loadConfig) { c.parents = append(c.parents, keys...) }
}

// Load returns the value under partition and key, invoking loader to
// produce and store it on a miss. Unlike [GetOrSetStatic], concurrent
// calls for the same entry are collapsed: one loader runs and every
// caller shares its result, so a popular key falling out of the cache
// does not stampede whatever the loader fronts. Loaded values are
// stored with the static interval unless an option chooses otherwise.
//
// The loader runs with the context of the call that started it; callers
// joining an in-flight load are served even if their own context ends
// first.
func Load[T any](ctx context.Context, c *Cache, partition, key string, loader Factory[T], opts ...LoadOption) (T, error) {
	var zero T
	if loader == nil {
		return zero, ErrNilFactory
	}
	if err := c.guard(ctx); err != nil {
		return zero, err
	}
	p, k, err := c.names(partition, key)
	if err != nil {
		return zero, err
	}

	var cfg loadConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.slidingSet && cfg.sliding <= 0 {
		return zero, errors.Wrapf(ErrInvalidInterval, "interval %s", cfg.sliding)
	}

	got, err := Get[T](ctx, c, partition, key)
	if err != nil {
		return zero, err
	}
	if v, ok := got.Get(); ok {
		return v, nil
	}

	// The flight key carries the requested type: two loads of the same
	// entry as different types must not share a flight, or the joiner
	// would assert the starter's value to the wrong type.
	fkey := strconv.FormatUint(Fingerprint(p, k), 16) + "/" + reflect.TypeFor[T]().String()
	v, err, _ := c.flight.Do(fkey, func() (any, error) {
		// A caller that lost the race to an earlier flight may arrive
		// after that flight stored the value; check once more before
		// loading.
		got, err := Get[T](ctx, c, partition, key)
		if err != nil {
			return nil, err
		}
		if v, ok := got.Get(); ok {
			return v, nil
		}

		loaded, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		var sopts []SetOption
		if len(cfg.parents) > 0 {
			sopts = append(sopts, WithParentKeys(cfg.parents...))
		}
		switch {
		case cfg.slidingSet:
			err = c.SetSliding(ctx, partition, key, loaded, cfg.sliding, sopts...)
		case cfg.lifetimeSet:
			err = c.SetTimed(ctx, partition, key, loaded, cfg.lifetime, sopts...)
		default:
			err = c.SetStatic(ctx, partition, key, loaded, sopts...)
		}
		if err != nil {
			return nil, err
		}
		return loaded, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
