package businessflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amirphl/freightdesk/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RateLookupCache keeps the ordered active rate records per (customer, type).
// Rebuilds are coalesced in-process with singleflight and serialized across
// callers (and nodes, with the Redis locker) by a per-key lock.
type RateLookupCache struct {
	storage RateStorage
	store   CacheStore
	locker  Locker
	cfg     *EngineConfig
	logger  *zap.Logger
	now     func() time.Time

	group singleflight.Group

	genMu       sync.Mutex
	generations map[string]uint64

	rebuilds atomic.Int64
}

// CacheOption customizes a RateLookupCache.
type CacheOption func(*RateLookupCache)

// WithCacheStore replaces the default in-memory entry store.
func WithCacheStore(store CacheStore) CacheOption {
	return func(c *RateLookupCache) { c.store = store }
}

// WithLocker replaces the default in-process locker.
func WithLocker(locker Locker) CacheOption {
	return func(c *RateLookupCache) { c.locker = locker }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *RateLookupCache) { c.now = now }
}

// NewRateLookupCache creates a cache over storage.
func NewRateLookupCache(storage RateStorage, cfg *EngineConfig, logger *zap.Logger, opts ...CacheOption) *RateLookupCache {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &RateLookupCache{
		storage:     storage,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryCacheStore(cfg.CacheStaleGrace)
	}
	if c.locker == nil {
		c.locker = NewLocalLocker()
	}
	return c
}

func rateCacheKey(customerID uint, rateType string) string {
	return fmt.Sprintf("rates:%d:%s", customerID, rateType)
}

// Get returns the active records for the key, rebuilding when the entry is
// missing or expired. The returned slice is shared and must not be modified.
func (c *RateLookupCache) Get(ctx context.Context, customerID uint, rateType string) ([]models.RateRecord, error) {
	rateType = NormalizeRateType(rateType)
	key := rateCacheKey(customerID, rateType)

	if entry := c.peek(ctx, key); entry != nil && entry.Fresh(c.now()) {
		rateCacheRequests.WithLabelValues("hit").Inc()
		return entry.Records, nil
	}

	rateCacheRequests.WithLabelValues("miss").Inc()
	return c.load(ctx, key, customerID, rateType, false)
}

// Rebuild reloads the key from storage even if the current entry is fresh.
func (c *RateLookupCache) Rebuild(ctx context.Context, customerID uint, rateType string) ([]models.RateRecord, error) {
	rateType = NormalizeRateType(rateType)
	return c.load(ctx, rateCacheKey(customerID, rateType), customerID, rateType, true)
}

// Invalidate drops the entry for the key. A rebuild already running for the
// key finishes but does not store its result.
func (c *RateLookupCache) Invalidate(ctx context.Context, customerID uint, rateType string) error {
	rateType = NormalizeRateType(rateType)
	key := rateCacheKey(customerID, rateType)

	c.genMu.Lock()
	c.generations[key]++
	c.genMu.Unlock()

	c.group.Forget(key)
	c.group.Forget(forcedFlightKey(key))
	rateCacheInvalidations.Inc()

	if err := c.store.Delete(ctx, key); err != nil {
		return NewBusinessError("RATE_CACHE_INVALIDATE_FAILED", "Failed to invalidate rate cache", err)
	}

	if c.cfg.LogCacheBuilds {
		c.logger.Info("rate cache invalidated",
			zap.Uint("customer_id", customerID),
			zap.String("type", rateType))
	}
	return nil
}

// Sweep removes entries that are past expiry and stale grace.
func (c *RateLookupCache) Sweep(ctx context.Context, now time.Time) (int, error) {
	return c.store.Sweep(ctx, now)
}

// RebuildCount is the number of storage queries run by rebuilds.
func (c *RateLookupCache) RebuildCount() int64 {
	return c.rebuilds.Load()
}

// StartSweeper runs Sweep every interval until the returned stop func is
// called. A non-positive interval disables the sweeper.
func (c *RateLookupCache) StartSweeper(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed, err := c.Sweep(context.Background(), c.now())
				if err != nil {
					c.logger.Warn("rate cache sweep failed", zap.Error(err))
					continue
				}
				if removed > 0 && c.cfg.LogCacheBuilds {
					c.logger.Debug("rate cache swept", zap.Int("removed", removed))
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
}

func forcedFlightKey(key string) string {
	return "rebuild:" + key
}

func (c *RateLookupCache) generation(key string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.generations[key]
}

// peek reads the entry without judging freshness. Store failures read as a
// miss so lookups keep working on storage alone.
func (c *RateLookupCache) peek(ctx context.Context, key string) *CacheEntry {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("rate cache read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return entry
}

func (c *RateLookupCache) load(ctx context.Context, key string, customerID uint, rateType string, force bool) ([]models.RateRecord, error) {
	flightKey := key
	if force {
		flightKey = forcedFlightKey(key)
	}

	// The shared build must not die with the caller that happened to start it.
	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.build(buildCtx, key, customerID, rateType, force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.RateRecord), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *RateLookupCache) build(ctx context.Context, key string, customerID uint, rateType string, force bool) ([]models.RateRecord, error) {
	gen := c.generation(key)

	release, ok, err := c.locker.Acquire(ctx, key, c.cfg.CacheLockTimeout)
	if err != nil || !ok {
		rateCacheRebuilds.WithLabelValues("lock_timeout").Inc()
		if stale := c.peek(ctx, key); stale != nil {
			rateCacheRequests.WithLabelValues("stale").Inc()
			c.logger.Warn("rate cache lock not acquired, serving stale entry",
				zap.String("key", key),
				zap.Time("expired_at", stale.ExpiresAt),
				zap.Error(err))
			return stale.Records, nil
		}
		c.logger.Error("rate cache build timed out",
			zap.String("key", key),
			zap.Duration("lock_timeout", c.cfg.CacheLockTimeout),
			zap.Error(err))
		return nil, NewBusinessErrorf("RATE_CACHE_BUILD_TIMEOUT",
			"Rate cache for customer %d type %s could not be built within %s",
			ErrCacheBuildTimeout, customerID, rateType, c.cfg.CacheLockTimeout)
	}
	defer release()

	// Another holder of the lock may have stored a fresh entry meanwhile.
	if !force {
		if entry := c.peek(ctx, key); entry != nil && entry.Fresh(c.now()) {
			return entry.Records, nil
		}
	}

	started := time.Now()
	records, err := c.storage.QueryActiveRecords(ctx, customerID, rateType)
	c.rebuilds.Add(1)
	rateCacheRebuildDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		rateCacheRebuilds.WithLabelValues("storage_error").Inc()
		if stale := c.peek(ctx, key); stale != nil {
			rateCacheRequests.WithLabelValues("stale").Inc()
			c.logger.Warn("rate cache rebuild failed, serving stale entry",
				zap.String("key", key), zap.Error(err))
			return stale.Records, nil
		}
		c.logger.Error("rate cache rebuild failed", zap.String("key", key), zap.Error(err))
		return nil, storageError("RATE_CACHE_REBUILD_FAILED", "Failed to load active rate records", err)
	}

	sortRateRecords(records)
	rateCacheRebuilds.WithLabelValues("success").Inc()

	now := c.now()
	entry := &CacheEntry{
		Records:   records,
		BuiltAt:   now,
		ExpiresAt: now.Add(c.cfg.CacheTTL),
	}

	if c.generation(key) == gen {
		if err := c.store.Set(ctx, key, entry); err != nil {
			c.logger.Warn("rate cache write failed", zap.String("key", key), zap.Error(err))
		}
		// An Invalidate may have landed between the check and the write. The
		// entry then predates it and must go; at worst a newer entry is
		// dropped and rebuilt on the next Get.
		if c.generation(key) != gen {
			if err := c.store.Delete(ctx, key); err != nil {
				c.logger.Warn("rate cache delete after invalidation failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	if c.cfg.LogCacheBuilds {
		c.logger.Info("rate cache built",
			zap.Uint("customer_id", customerID),
			zap.String("type", rateType),
			zap.Int("records", len(records)),
			zap.Bool("forced", force),
			zap.Duration("elapsed", time.Since(started)))
	}
	return records, nil
}
