package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/metrics"
	"bullrush.com/pkg/safe"
)

// pollRegistry owns one goroutine per open deposit request.
type pollRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	base    context.Context
	stopAll context.CancelFunc
}

func newPollRegistry() *pollRegistry {
	base, cancel := context.WithCancel(context.Background())
	return &pollRegistry{
		cancels: make(map[string]context.CancelFunc),
		base:    base,
		stopAll: cancel,
	}
}

// start runs fn for id unless a poller for id already exists or the registry
// has shut down.
func (p *pollRegistry) start(id string, fn func(ctx context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.base.Err() != nil {
		return false
	}
	if _, running := p.cancels[id]; running {
		return false
	}
	ctx, cancel := context.WithCancel(p.base)
	p.cancels[id] = cancel
	p.wg.Add(1)
	metrics.ActivePollers.Inc()

	safe.GoCtx(ctx, func(ctx context.Context) {
		defer func() {
			p.mu.Lock()
			delete(p.cancels, id)
			p.mu.Unlock()
			cancel()
			metrics.ActivePollers.Dec()
			p.wg.Done()
		}()
		fn(ctx)
	})
	return true
}

func (p *pollRegistry) stop(id string) {
	p.mu.Lock()
	cancel, ok := p.cancels[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *pollRegistry) running(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.cancels[id]
	return ok
}

func (p *pollRegistry) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}

func (p *pollRegistry) shutdown() {
	p.mu.Lock()
	p.stopAll()
	p.mu.Unlock()
	p.wg.Wait()
}

// StartPolling begins checking the collection address for requestID every
// poll interval until the request leaves pending.
func (v *Verifier) StartPolling(requestID string) bool {
	return v.polls.start(requestID, func(ctx context.Context) {
		v.pollLoop(ctx, requestID)
	})
}

func (v *Verifier) pollLoop(ctx context.Context, requestID string) {
	ticker := time.NewTicker(v.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		res, err := v.checkPayment(ctx, requestID)
		metrics.DepositResults.WithLabelValues("poll", string(res.Kind)).Inc()
		if err != nil {
			// retried on the next tick
			logger.Warn(ctx, "deposit poll failed", zap.String("request_id", requestID), zap.Error(err))
			continue
		}
		if res.Terminal() {
			logger.Info(ctx, "deposit poll finished",
				zap.String("request_id", requestID),
				zap.String("result", string(res.Kind)),
			)
			return
		}
	}
}

// Polling reports whether a poller is active for requestID.
func (v *Verifier) Polling(requestID string) bool { return v.polls.running(requestID) }

// ActivePolls is the number of live pollers.
func (v *Verifier) ActivePolls() int { return v.polls.size() }

// Shutdown cancels every poller and waits for them to exit.
func (v *Verifier) Shutdown() {
	v.polls.shutdown()
}

// ResumePending restarts pollers for requests that were open when the process stopped.
func (v *Verifier) ResumePending(ctx context.Context) (int, error) {
	reqs, err := v.deposits.ListOpenRequests(ctx, v.now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range reqs {
		if v.StartPolling(r.ID) {
			n++
		}
	}
	logger.Info(ctx, "🔁 resumed deposit pollers", zap.Int("count", n))
	return n, nil
}

// SweepExpired expires overdue pending requests in bulk.
func (v *Verifier) SweepExpired(ctx context.Context) (int64, error) {
	n, err := v.deposits.ExpireOverdue(ctx, v.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info(ctx, "expired overdue deposit requests", zap.Int64("count", n))
	}
	return n, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (v *Verifier) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := v.SweepExpired(ctx); err != nil {
				logger.Warn(ctx, "expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// Leader elects the instance that resumes pollers after a restart.
type Leader interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// RunLeader keeps trying to hold leadership; the first time it is won the
// pending pollers are resumed. A nil leader means this is the only instance.
func (v *Verifier) RunLeader(ctx context.Context, leader Leader, ttl time.Duration) {
	if leader == nil {
		if _, err := v.ResumePending(ctx); err != nil {
			logger.Error(ctx, "resume pending deposits failed", zap.Error(err))
		}
		return
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	resumed := false
	for {
		ok, err := leader.TryAcquire(ctx, ttl)
		switch {
		case err != nil:
			logger.Warn(ctx, "leader lock error", zap.Error(err))
		case ok && !resumed:
			if _, err := v.ResumePending(ctx); err != nil {
				logger.Error(ctx, "resume pending deposits failed", zap.Error(err))
			} else {
				resumed = true
			}
		case !ok:
			resumed = false
		}
		select {
		case <-ctx.Done():
			_ = leader.Release(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
		}
	}
}
