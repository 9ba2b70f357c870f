package pantry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultPartition is the conventional partition for callers that do
// not need partition scoping. The engine gives it no special meaning.
const DefaultPartition = "default"

// Cache is a partition-scoped key-value cache over a backing [Store].
// Values carry one of four expiry policies set at write time; reads
// renew sliding entries and lazily evict expired ones. All methods are
// safe for concurrent use.
//
// Storage failures are absorbed rather than returned: reads degrade to
// misses, writes to no-ops and counts to zero, with the failure logged,
// counted in [Cache.Stats] and kept in [Cache.LastError]. Errors a
// method does return are the caller's to fix: bad arguments, values the
// serializer rejects, operations the store cannot perform, use after
// Close, or the caller's own cancelled context.
type Cache struct {
	store          Store
	caps           Capabilities
	codec          codec
	staticInterval time.Duration
	clock          clockwork.Clock
	log            *zap.Logger

	stats  counters
	flight singleflight.Group

	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once
	closed    atomic.Bool

	mu      sync.Mutex
	lastErr error
}

// config holds the resolved configuration for a Cache.
type config struct {
	serializer     Serializer
	compressor     Compressor
	threshold      int
	staticInterval time.Duration
	janitorEvery   time.Duration
	clock          clockwork.Clock
	logger         *zap.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*config)

func defaultConfig() config {
	return config{
		serializer:     MsgpackSerializer{},
		compressor:     SnappyCompressor{},
		threshold:      DefaultCompressionThreshold,
		staticInterval: DefaultStaticInterval,
		clock:          clockwork.NewRealClock(),
		logger:         zap.NewNop(),
	}
}

func applyOptions(opts []CacheOption) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithSerializer replaces the msgpack default.
func WithSerializer(s Serializer) CacheOption {
	return func(c *config) { c.serializer = s }
}

// WithCompressor replaces the snappy default.
func WithCompressor(cmp Compressor) CacheOption {
	return func(c *config) { c.compressor = cmp }
}

// WithCompressionThreshold sets the encoded size, in bytes, at which
// values are compressed. Zero or negative disables compression.
// Defaults to DefaultCompressionThreshold (4 KiB).
func WithCompressionThreshold(n int) CacheOption {
	return func(c *config) { c.threshold = n }
}

// WithStaticInterval sets the sliding interval applied by SetStatic.
// Defaults to DefaultStaticInterval (30 days).
func WithStaticInterval(d time.Duration) CacheOption {
	return func(c *config) { c.staticInterval = d }
}

// WithJanitor starts a background goroutine that runs
// [Cache.EvictExpired] every interval until Close. Without it, expired
// entries are only removed when reads encounter them or callers sweep
// explicitly.
func WithJanitor(interval time.Duration) CacheOption {
	return func(c *config) { c.janitorEvery = interval }
}

// WithClock injects the clock used for expiry decisions. Defaults to
// the wall clock; tests substitute a fake.
func WithClock(clk clockwork.Clock) CacheOption {
	return func(c *config) { c.clock = clk }
}

// WithLogger sets the logger for swallowed failures and lifecycle
// events. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) CacheOption {
	return func(c *config) { c.logger = log }
}

// New returns a Cache over store. The context bounds the cache's
// background work: cancelling it stops the janitor, though Close should
// still be called to release the store.
func New(ctx context.Context, store Store, opts ...CacheOption) (*Cache, error) {
	if store == nil {
		return nil, errors.New("pantry: store must not be nil")
	}
	cfg := applyOptions(opts)
	if cfg.staticInterval <= 0 {
		cfg.staticInterval = DefaultStaticInterval
	}

	childCtx, cancel := context.WithCancel(ctx)
	c := &Cache{
		store:          store,
		caps:           store.Capabilities(),
		codec:          codec{serializer: cfg.serializer, compressor: cfg.compressor, threshold: cfg.threshold},
		staticInterval: cfg.staticInterval,
		clock:          cfg.clock,
		log:            cfg.logger,
		ctx:            childCtx,
		cancel:         cancel,
	}

	if cfg.janitorEvery > 0 {
		c.waitGroup.Add(1)
		go c.run(cfg.janitorEvery)
	}
	return c, nil
}

// run is the janitor loop.
func (c *Cache) run(every time.Duration) {
	defer c.waitGroup.Done()
	ticker := c.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.Chan():
			n, err := c.EvictExpired(c.ctx)
			if err != nil {
				return
			}
			if n > 0 {
				c.log.Debug("janitor removed expired entries", zap.Int64("count", n))
			}
		}
	}
}

// Close stops the janitor and closes the backing store. Close is
// idempotent; operations after it return ErrClosed.
func (c *Cache) Close() error {
	var err error
	c.once.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.waitGroup.Wait()
		err = c.store.Close()
	})
	return err
}

// LastError returns the most recent storage failure the cache absorbed,
// or nil. It is a diagnostic slot, not an error stream: consecutive
// failures overwrite it.
func (c *Cache) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Stats returns a snapshot of the cache's activity counters.
func (c *Cache) Stats() Stats {
	return c.stats.snapshot()
}

// guard rejects operations on a closed cache or a done context.
func (c *Cache) guard(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (c *Cache) now() time.Time {
	return c.clock.Now().UTC()
}

// fail absorbs a storage failure: it is counted, kept in the LastError
// slot and logged, and the operation degrades. The one exception is a
// caller whose own context is done; that error is theirs and
// propagates.
func (c *Cache) fail(ctx context.Context, op, partition, key string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	c.stats.errors.Add(1)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.log.Warn("cache store operation failed",
		zap.String("op", op),
		zap.String("partition", partition),
		zap.String("key", key),
		zap.Error(err))
	return nil
}

// names validates the partition and key and returns them truncated to
// the store's limits.
func (c *Cache) names(partition, key string) (string, string, error) {
	if strings.TrimSpace(partition) == "" {
		return "", "", ErrInvalidPartition
	}
	if strings.TrimSpace(key) == "" {
		return "", "", ErrInvalidKey
	}
	return truncate(partition, c.caps.MaxPartitionLen), truncate(key, c.caps.MaxKeyLen), nil
}

// parents validates a parent key list against the store's capabilities
// and returns it truncated to the store's key limit.
func (c *Cache) parents(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if max := c.caps.MaxParentKeys; max >= 0 && len(keys) > max {
		return nil, errors.Wrapf(ErrTooManyParents, "%d parent keys, store allows %d", len(keys), max)
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, ErrEmptyParentKey
		}
		out[i] = truncate(k, c.caps.MaxKeyLen)
	}
	return out, nil
}
