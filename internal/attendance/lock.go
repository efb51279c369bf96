package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// Locker serializes the count-then-append step of a scan per identity.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

var ErrLockBusy = errors.New("scan lock busy")

// NoLock performs no coordination. Two concurrent scans for one identity can
// both observe the same count and record the same slot twice.
type NoLock struct{}

func (NoLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// MemoryLocker is a keyed mutex for a single process. Waiters give up when
// their context ends.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	held chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

func (m *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{held: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.held <- struct{}{}:
	case <-ctx.Done():
		m.drop(key, l)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.held
			m.drop(key, l)
		})
	}, nil
}

func (m *MemoryLocker) drop(key string, l *keyLock) {
	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds a SET NX lease per key so several API processes share the
// same serialization. The lease expires after ttl if the holder dies.
type RedisLocker struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	backoff func() retry.Backoff
}

type RedisLockerOption func(*RedisLocker)

func WithLockPrefix(p string) RedisLockerOption {
	return func(l *RedisLocker) { l.prefix = p }
}

// WithLockBackoff sets the polling schedule used while the key is held elsewhere.
func WithLockBackoff(b func() retry.Backoff) RedisLockerOption {
	return func(l *RedisLocker) { l.backoff = b }
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, opts ...RedisLockerOption) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	l := &RedisLocker{
		client: client,
		prefix: "transit:scanlock:",
		ttl:    ttl,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(10 * time.Millisecond)
			b = retry.WithCappedDuration(200*time.Millisecond, b)
			return retry.WithMaxDuration(ttl, b)
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.prefix + key
	token := uuid.NewString()
	err := retry.Do(ctx, l.backoff(), func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
		if !ok {
			return retry.RetryableError(ErrLockBusy)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", k, err)
	}
	return func() {
		// A fresh context so a cancelled request still releases its lease.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, l.client, []string{k}, token).Err()
	}, nil
}
