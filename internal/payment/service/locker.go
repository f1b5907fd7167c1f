package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/xerr"
	"bullrush.com/pkg/xredis"
)

// Locker serializes work on one key. Acquire fails with a conflict when the
// key is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, key string) (unlock func(), err error)
}

// NewLocker returns a redis-backed locker, or a process-local one when rdb is nil.
func NewLocker(rdb *redis.Client, ttl time.Duration) Locker {
	if rdb == nil {
		return NewLocalLocker()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisLocker{rdb: rdb, ttl: ttl}
}

type redisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock := xredis.NewDistLock(l.rdb, "bullrush:lock:"+key, l.ttl)
	ok, err := lock.Lock(ctx, 3, 100*time.Millisecond)
	if err != nil {
		return nil, xerr.Wrap(err, xerr.KindInternal, "acquire lock")
	}
	if !ok {
		return nil, xerr.New(xerr.Conflict, "operation already in progress")
	}
	return func() {
		if _, err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "release lock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, xerr.New(xerr.Conflict, "operation already in progress")
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
