package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/freightdesk/models"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// CacheEntry is one materialized (customer, type) rate list. Records are
// ordered by priority sequence then id and must not be modified by readers.
type CacheEntry struct {
	Records   []models.RateRecord `json:"records"`
	BuiltAt   time.Time           `json:"built_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Fresh reports whether the entry may be served without a rebuild.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// CacheStore holds cache entries. Entries outlive their expiry for the stale
// grace period so a timed out rebuild can still serve them.
type CacheStore interface {
	Get(ctx context.Context, key string) (*CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	// Sweep drops entries whose stale grace ended before now.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// MemoryCacheStore keeps entries in process memory.
type MemoryCacheStore struct {
	mu         sync.RWMutex
	entries    map[string]*CacheEntry
	staleGrace time.Duration
}

func NewMemoryCacheStore(staleGrace time.Duration) *MemoryCacheStore {
	return &MemoryCacheStore{
		entries:    make(map[string]*CacheEntry),
		staleGrace: staleGrace,
	}
}

func (s *MemoryCacheStore) Get(_ context.Context, key string) (*CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryCacheStore) Set(_ context.Context, key string, entry *CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *MemoryCacheStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryCacheStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.ExpiresAt.Add(s.staleGrace)) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries.
func (s *MemoryCacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// cacheClient is the part of the Redis client the cache store needs.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCacheStore shares entries between nodes as JSON. Calls go through a
// circuit breaker; while it is open every call fails fast with
// ErrCacheNotAvailable and the cache falls back to storage.
type RedisCacheStore struct {
	rc         cacheClient
	prefix     string
	staleGrace time.Duration
	breaker    *gobreaker.CircuitBreaker
}

func NewRedisCacheStore(rc *redis.Client, prefix string, staleGrace time.Duration) *RedisCacheStore {
	return newRedisCacheStore(rc, prefix, staleGrace)
}

func newRedisCacheStore(rc cacheClient, prefix string, staleGrace time.Duration) *RedisCacheStore {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rate-cache-redis",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &RedisCacheStore{rc: rc, prefix: prefix, staleGrace: staleGrace, breaker: breaker}
}

func (s *RedisCacheStore) redisKey(key string) string {
	return fmt.Sprintf("%sratecache:%s", s.prefix, key)
}

func (s *RedisCacheStore) execute(fn func() (any, error)) (any, error) {
	v, err := s.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCacheNotAvailable, err)
	}
	return v, err
}

func (s *RedisCacheStore) Get(ctx context.Context, key string) (*CacheEntry, bool, error) {
	v, err := s.execute(func() (any, error) {
		raw, err := s.rc.Get(ctx, s.redisKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return raw, err
	})
	if err != nil {
		return nil, false, err
	}
	raw, _ := v.([]byte)
	if raw == nil {
		return nil, false, nil
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode rate cache entry %s: %w", key, err)
	}
	return &entry, true, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, key string, entry *CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode rate cache entry %s: %w", key, err)
	}

	ttl := time.Until(entry.ExpiresAt) + s.staleGrace
	if ttl <= 0 {
		return nil
	}

	_, err = s.execute(func() (any, error) {
		return nil, s.rc.Set(ctx, s.redisKey(key), raw, ttl).Err()
	})
	return err
}

func (s *RedisCacheStore) Delete(ctx context.Context, key string) error {
	_, err := s.execute(func() (any, error) {
		return nil, s.rc.Del(ctx, s.redisKey(key)).Err()
	})
	return err
}

// Sweep is a no-op: Redis expires entries itself.
func (s *RedisCacheStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
