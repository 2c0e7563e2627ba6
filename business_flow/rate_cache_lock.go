package businessflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes cache rebuilds per key. Acquire waits at most timeout
// and reports ok=false when the lock stayed busy.
type Locker interface {
	Acquire(ctx context.Context, key string, timeout time.Duration) (release func(), ok bool, err error)
}

// LocalLocker is an in-process lock per key, for single node deployments.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), bool, error) {
	s := l.slot(key)

	// Fast path keeps an uncontended acquire free of timers.
	select {
	case s <- struct{}{}:
		return l.releaser(s), true, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return l.releaser(s), true, nil
	case <-timer.C:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (l *LocalLocker) releaser(s chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-s })
	}
}

// releaseScript deletes the lock only if it still holds our token, so an
// expired lease taken over by another node is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// lockClient is the part of the Redis client the locker needs.
type lockClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

const defaultLockLease = time.Minute

// RedisLocker is a lease in Redis (SET NX PX) shared by every node. The lease
// is separate from the wait timeout: it has to outlast the holder's rebuild,
// and only frees the key when a holder died without releasing it.
type RedisLocker struct {
	rc           lockClient
	prefix       string
	lease        time.Duration
	pollInterval time.Duration
}

func NewRedisLocker(rc *redis.Client, prefix string, lease time.Duration) *RedisLocker {
	return newRedisLocker(rc, prefix, lease)
}

func newRedisLocker(rc lockClient, prefix string, lease time.Duration) *RedisLocker {
	if lease <= 0 {
		lease = defaultLockLease
	}
	return &RedisLocker{rc: rc, prefix: prefix, lease: lease, pollInterval: 50 * time.Millisecond}
}

func (l *RedisLocker) lockKey(key string) string {
	return fmt.Sprintf("%slock:%s", l.prefix, key)
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), bool, error) {
	lockKey := l.lockKey(key)
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.rc.SetNX(ctx, lockKey, token, l.lease).Result()
		if err != nil {
			return nil, false, NewBusinessError("RATE_CACHE_LOCK_FAILED", "Failed to acquire rate cache lock", err)
		}
		if ok {
			release := func() {
				_ = releaseScript.Run(context.Background(), l.rc, []string{lockKey}, token).Err()
			}
			return release, true, nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, false, nil
		}
		if wait > l.pollInterval {
			wait = l.pollInterval
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}
