package pantry_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/pantrykv/pantry"
	"github.com/pantrykv/pantry/memstore"
)

func TestLoadCollapsesConcurrentMisses(t *testing.T) {
	eachStore(t, func(t *testing.T, store pantry.Store) {
		c, _ := newCache(t, store)
		ctx := context.Background()

		var calls atomic.Int32
		loader := func(context.Context) (string, error) {
			calls.Add(1)
			time.Sleep(50 * time.Millisecond)
			return "loaded", nil
		}

		var g errgroup.Group
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				v, err := pantry.Load(ctx, c, "p", "hot", loader)
				if err != nil {
					return err
				}
				if v != "loaded" {
					return errors.Newf("unexpected value %q", v)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.EqualValues(t, 1, calls.Load(), "one loader serves every caller")
		found, err := c.Contains(ctx, "p", "hot")
		assert.NoError(t, err)
		assert.True(t, found)
	})
}

func TestLoadHitSkipsLoader(t *testing.T) {
	c, _ := newCache(t, memstore.New())
	ctx := context.Background()

	require.NoError(t, c.SetStatic(ctx, "p", "k", "cached"))

	var calls atomic.Int32
	v, err := pantry.Load(ctx, c, "p", "k", func(context.Context) (string, error) {
		calls.Add(1)
		return "loaded", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cached", v)
	assert.EqualValues(t, 0, calls.Load())
}

func TestLoadErrorPropagates(t *testing.T) {
	c, _ := newCache(t, memstore.New())
	ctx := context.Background()

	boom := errors.New("origin unreachable")
	_, err := pantry.Load(ctx, c, "p", "k", func(context.Context) (string, error) {
		return "", boom
	})
	assert.True(t, errors.Is(err, boom))

	found, err := c.Contains(ctx, "p", "k")
	assert.NoError(t, err)
	assert.False(t, found, "a failed load caches nothing")

	// The next load is free to try again.
	v, err := pantry.Load(ctx, c, "p", "k", func(context.Context) (string, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
}

func TestLoadConcurrentMixedTypes(t *testing.T) {
	c, _ := newCache(t, memstore.New())
	ctx := context.Background()

	// Two loads of the same entry as different types must not share a
	// flight; a joiner handed the other type's value would panic on the
	// assertion.
	started := make(chan struct{})
	release := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		_, err := pantry.Load(ctx, c, "p", "k", func(context.Context) (string, error) {
			close(started)
			<-release
			return "text", nil
		})
		return err
	})
	<-started
	g.Go(func() error {
		v, err := pantry.Load(ctx, c, "p", "k", func(context.Context) (int, error) {
			defer close(release)
			return 42, nil
		})
		if err != nil {
			return err
		}
		if v != 42 {
			return errors.Newf("unexpected value %d", v)
		}
		return nil
	})
	require.NoError(t, g.Wait())
}

func TestLoadInvalidOptions(t *testing.T) {
	c, _ := newCache(t, memstore.New())
	ctx := context.Background()

	var calls atomic.Int32
	loader := func(context.Context) (string, error) {
		calls.Add(1)
		return "v", nil
	}

	// A non-positive sliding interval is rejected like SetSliding
	// rejects it, before the loader runs.
	for _, d := range []time.Duration{0, -time.Minute} {
		_, err := pantry.Load(ctx, c, "p", "k", loader, pantry.LoadSliding(d))
		assert.True(t, errors.Is(err, pantry.ErrInvalidInterval))
	}
	assert.EqualValues(t, 0, calls.Load())

	// A non-positive lifetime stays timed, matching SetTimed: stored,
	// immediately expired, never falling back to the static default.
	v, err := pantry.Load(ctx, c, "p", "k", loader, pantry.LoadTimed(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	it, err := c.PeekItem(ctx, "p", "k")
	require.NoError(t, err)
	require.True(t, it.Ok())
	assert.Equal(t, time.Duration(0), it.Value().Interval)
	wantInstant(t, testBase, it.Value().ExpiresAt)
}

func TestLoadNilLoader(t *testing.T) {
	c, _ := newCache(t, memstore.New())

	_, err := pantry.Load[string](context.Background(), c, "p", "k", nil)
	assert.True(t, errors.Is(err, pantry.ErrNilFactory))
}

func TestLoadSlidingOption(t *testing.T) {
	c, _ := newCache(t, memstore.New())
	ctx := context.Background()

	_, err := pantry.Load(ctx, c, "p", "k", func(context.Context) (string, error) {
		return "v", nil
	}, pantry.LoadSliding(10*time.Minute))
	require.NoError(t, err)

	it, err := c.PeekItem(ctx, "p", "k")
	require.NoError(t, err)
	require.True(t, it.Ok())
	assert.Equal(t, 10*time.Minute, it.Value().Interval)
	wantInstant(t, testBase.Add(10*time.Minute), it.Value().ExpiresAt)
}

func TestLoadTimedOption(t *testing.T) {
	c, _ := newCache(t, memstore.New())
	ctx := context.Background()

	_, err := pantry.Load(ctx, c, "p", "k", func(context.Context) (string, error) {
		return "v", nil
	}, pantry.LoadTimed(time.Hour))
	require.NoError(t, err)

	it, err := c.PeekItem(ctx, "p", "k")
	require.NoError(t, err)
	require.True(t, it.Ok())
	assert.Equal(t, time.Duration(0), it.Value().Interval)
	wantInstant(t, testBase.Add(time.Hour), it.Value().ExpiresAt)
}

func TestLoadDefaultsToStatic(t *testing.T) {
	c, _ := newCache(t, memstore.New(), pantry.WithStaticInterval(2*time.Hour))
	ctx := context.Background()

	_, err := pantry.Load(ctx, c, "p", "k", func(context.Context) (string, error) {
		return "v", nil
	})
	require.NoError(t, err)

	it, err := c.PeekItem(ctx, "p", "k")
	require.NoError(t, err)
	require.True(t, it.Ok())
	assert.Equal(t, 2*time.Hour, it.Value().Interval)
}

func TestLoadParentKeys(t *testing.T) {
	c, _ := newCache(t, memstore.New())
	ctx := context.Background()

	require.NoError(t, c.SetStatic(ctx, "p", "root", "r"))
	_, err := pantry.Load(ctx, c, "p", "child", func(context.Context) (string, error) {
		return "v", nil
	}, pantry.LoadParentKeys("root"))
	require.NoError(t, err)

	it, err := c.PeekItem(ctx, "p", "child")
	require.NoError(t, err)
	require.True(t, it.Ok())
	assert.Equal(t, []string{"root"}, it.Value().ParentKeys)

	require.NoError(t, c.Remove(ctx, "p", "root"))
	found, err := c.Contains(ctx, "p", "child")
	assert.NoError(t, err)
	assert.False(t, found)
}
