package xredis

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] lock key, ARGV[1] owner token
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// KEYS[1] lock key, ARGV[1] owner token, ARGV[2] ttl in ms
const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("pexpire", KEYS[1], ARGV[2])
else
    return 0
end
`

// DistLock is a SET NX lock owned by a random token; only the owner can release it.
type DistLock struct {
	client     *redis.Client
	key        string
	token      string
	expiration time.Duration
}

func NewDistLock(client *redis.Client, key string, expiration time.Duration) *DistLock {
	return &DistLock{
		client:     client,
		key:        key,
		token:      uuid.New().String(),
		expiration: expiration,
	}
}

// TryLock makes a single attempt.
func (l *DistLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
}

// Lock spins up to retryTimes with a jittered interval.
func (l *DistLock) Lock(ctx context.Context, retryTimes int, retryInterval time.Duration) (bool, error) {
	for i := 0; i < retryTimes; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		sleep := retryInterval + time.Duration(rand.Intn(10))*time.Millisecond
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return false, nil
}

func (l *DistLock) Unlock(ctx context.Context) (bool, error) {
	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// LeaderLock elects one instance for singleton background jobs. The holder keeps
// the key alive by calling TryAcquire again before the ttl runs out.
type LeaderLock struct {
	rdb *redis.Client
	key string
	id  string
}

func NewLeaderLock(rdb *redis.Client, key string) *LeaderLock {
	return &LeaderLock{rdb: rdb, key: key, id: uuid.NewString()}
}

func (r *LeaderLock) ID() string { return r.id }

// TryAcquire takes the key if free, or renews it if this instance already holds it.
func (r *LeaderLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.key, r.id, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	renewed, err := r.rdb.Eval(ctx, renewScript, []string{r.key}, r.id, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return renewed == 1, nil
}

// Release gives up leadership early, e.g. on shutdown.
func (r *LeaderLock) Release(ctx context.Context) error {
	return r.rdb.Eval(ctx, unlockScript, []string{r.key}, r.id).Err()
}
