package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"bullrush.com/pkg/safe"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nano
}

// Store keeps one token bucket per key, e.g. client ip + route. Idle buckets
// are dropped by the janitor after ttl.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	rate    rate.Limit
	burst   int
	ttl     time.Duration
}

func NewStore(r rate.Limit, burst int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{
		entries: make(map[string]*entry, 1024),
		rate:    r,
		burst:   burst,
		ttl:     ttl,
	}
}

func (s *Store) limiter(key string) *rate.Limiter {
	now := time.Now().UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen.Store(now)
	return e.limiter
}

// Allow consumes one token for key without blocking.
func (s *Store) Allow(key string) bool {
	return s.limiter(key).Allow()
}

// Wait blocks until key has a token or ctx ends.
func (s *Store) Wait(ctx context.Context, key string) error {
	return s.limiter(key).Wait(ctx)
}

// StartJanitor evicts idle keys every interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	safe.GoCtx(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	})
}

func (s *Store) cleanup() {
	cut := time.Now().Add(-s.ttl).UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.lastSeen.Load() < cut {
			delete(s.entries, k)
		}
	}
}
