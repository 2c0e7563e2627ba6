package businessflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/freightdesk/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis answers the handful of commands the locker and cache store send.
// EvalSha runs the compare-and-delete of releaseScript.
type fakeRedis struct {
	redis.Scripter

	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// expire drops key as if its TTL ran out.
func (f *fakeRedis) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	delete(f.ttls, key)
}

func (f *fakeRedis) value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeRedis) ttl(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, taken := f.values[key]; taken {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	if v, ok := f.values[keys[0]]; ok && v == args[0] {
		delete(f.values, keys[0])
		delete(f.ttls, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			delete(f.ttls, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	const lockKey = "fd:lock:1:LTL"

	t.Run("LeaseOutlivesWaitTimeout", func(t *testing.T) {
		rc := newFakeRedis()
		locker := newRedisLocker(rc, "fd:", 2*time.Minute)

		release, ok, err := locker.Acquire(ctx, "1:LTL", 20*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 2*time.Minute, rc.ttl(lockKey))

		release()
		_, held := rc.value(lockKey)
		assert.False(t, held)
	})

	t.Run("DefaultLease", func(t *testing.T) {
		rc := newFakeRedis()
		locker := newRedisLocker(rc, "fd:", 0)

		release, ok, err := locker.Acquire(ctx, "1:LTL", 20*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		defer release()
		assert.Equal(t, defaultLockLease, rc.ttl(lockKey))
	})

	t.Run("BusyUntilReleased", func(t *testing.T) {
		rc := newFakeRedis()
		locker := newRedisLocker(rc, "fd:", time.Minute)

		release, ok, err := locker.Acquire(ctx, "1:LTL", 20*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = locker.Acquire(ctx, "1:LTL", 30*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)

		release()
		again, ok, err := locker.Acquire(ctx, "1:LTL", 30*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		again()
	})

	t.Run("ExpiredHolderCannotReleaseNewLease", func(t *testing.T) {
		rc := newFakeRedis()
		locker := newRedisLocker(rc, "fd:", time.Minute)

		stale, ok, err := locker.Acquire(ctx, "1:LTL", 20*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		rc.expire(lockKey)

		current, ok, err := locker.Acquire(ctx, "1:LTL", 20*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		token, _ := rc.value(lockKey)

		stale()
		held, ok := rc.value(lockKey)
		require.True(t, ok)
		assert.Equal(t, token, held)

		current()
		_, ok = rc.value(lockKey)
		assert.False(t, ok)
	})

	t.Run("RedisError", func(t *testing.T) {
		rc := newFakeRedis()
		rc.failWith(errors.New("connection refused"))
		locker := newRedisLocker(rc, "fd:", time.Minute)

		release, ok, err := locker.Acquire(ctx, "1:LTL", 20*time.Millisecond)
		require.Error(t, err)
		assert.False(t, ok)
		assert.Nil(t, release)
		assert.Equal(t, "RATE_CACHE_LOCK_FAILED", ErrorCode(err))
	})

	t.Run("ContextCanceledWhileWaiting", func(t *testing.T) {
		rc := newFakeRedis()
		locker := newRedisLocker(rc, "fd:", time.Minute)

		release, ok, err := locker.Acquire(ctx, "1:LTL", 20*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		defer release()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, ok, err = locker.Acquire(cctx, "1:LTL", time.Second)
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRedisCacheStore(t *testing.T) {
	ctx := context.Background()
	const redisKey = "fd:ratecache:1:LTL"

	t.Run("SetGetDelete", func(t *testing.T) {
		rc := newFakeRedis()
		store := newRedisCacheStore(rc, "fd:", 10*time.Minute)

		_, found, err := store.Get(ctx, "1:LTL")
		require.NoError(t, err)
		assert.False(t, found)

		now := time.Now()
		entry := &CacheEntry{
			Records:   []models.RateRecord{testRecord(4, 0, "Toronto")},
			BuiltAt:   now,
			ExpiresAt: now.Add(time.Hour),
		}
		require.NoError(t, store.Set(ctx, "1:LTL", entry))

		ttl := rc.ttl(redisKey)
		assert.Greater(t, ttl, time.Hour)
		assert.LessOrEqual(t, ttl, time.Hour+10*time.Minute)

		got, found, err := store.Get(ctx, "1:LTL")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []uint{4}, recordIDs(got.Records))
		assert.WithinDuration(t, entry.ExpiresAt, got.ExpiresAt, time.Millisecond)

		require.NoError(t, store.Delete(ctx, "1:LTL"))
		_, found, err = store.Get(ctx, "1:LTL")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("PastStaleGraceNotWritten", func(t *testing.T) {
		rc := newFakeRedis()
		store := newRedisCacheStore(rc, "fd:", time.Minute)

		old := time.Now().Add(-time.Hour)
		require.NoError(t, store.Set(ctx, "1:LTL", &CacheEntry{BuiltAt: old, ExpiresAt: old}))
		_, written := rc.value(redisKey)
		assert.False(t, written)
	})

	t.Run("UndecodableEntry", func(t *testing.T) {
		rc := newFakeRedis()
		rc.Set(ctx, redisKey, "{not json", time.Minute)
		store := newRedisCacheStore(rc, "fd:", time.Minute)

		_, found, err := store.Get(ctx, "1:LTL")
		require.Error(t, err)
		assert.False(t, found)
	})

	t.Run("BreakerOpensAfterRepeatedFailures", func(t *testing.T) {
		rc := newFakeRedis()
		rc.failWith(errors.New("connection refused"))
		store := newRedisCacheStore(rc, "fd:", time.Minute)

		for i := 0; i < 5; i++ {
			_, _, err := store.Get(ctx, "1:LTL")
			require.Error(t, err)
			assert.False(t, IsCacheNotAvailable(err))
		}

		_, _, err := store.Get(ctx, "1:LTL")
		require.Error(t, err)
		assert.True(t, IsCacheNotAvailable(err))
	})
}
