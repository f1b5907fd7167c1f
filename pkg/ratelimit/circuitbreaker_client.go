package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"bullrush.com/pkg/metrics"
	"bullrush.com/pkg/xerr"
)

type Rule struct {
	// probes allowed through while half-open; 0 is treated as 1 by the library
	MaxRequests uint32

	// counting window while closed
	Interval time.Duration

	// >0 enables a rolling window of this bucket size
	BucketPeriod time.Duration

	// how long the breaker stays open before half-open
	Timeout time.Duration

	TripConsecutiveFailures uint32
	TripFailureRate         float64 // 0..1
	TripMinRequests         uint32  // sample floor for the failure rate
}

// Manager hands out one breaker per upstream operation name.
type Manager struct {
	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[any]

	defaultRule Rule
	rules       map[string]Rule
}

func NewManager(defaultRule Rule, perMethod map[string]Rule) *Manager {
	if defaultRule.MaxRequests == 0 {
		defaultRule.MaxRequests = 5
	}
	if defaultRule.Timeout <= 0 {
		defaultRule.Timeout = 3 * time.Second
	}
	if defaultRule.Interval <= 0 {
		defaultRule.Interval = 10 * time.Second
	}
	if defaultRule.TripConsecutiveFailures == 0 && defaultRule.TripFailureRate == 0 {
		defaultRule.TripConsecutiveFailures = 10
	}
	if defaultRule.TripMinRequests == 0 {
		defaultRule.TripMinRequests = 20
	}

	return &Manager{
		m:           make(map[string]*gobreaker.CircuitBreaker[any], 16),
		defaultRule: defaultRule,
		rules:       perMethod,
	}
}

func (m *Manager) Get(method string) *gobreaker.CircuitBreaker[any] {
	m.mu.RLock()
	cb := m.m[method]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cb = m.m[method]; cb != nil {
		return cb
	}

	rule, ok := m.rules[method]
	if !ok {
		rule = m.defaultRule
	}
	st := gobreaker.Settings{
		Name:         method,
		MaxRequests:  rule.MaxRequests,
		Interval:     rule.Interval,
		BucketPeriod: rule.BucketPeriod,
		Timeout:      rule.Timeout,

		ReadyToTrip: func(c gobreaker.Counts) bool {
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				failRate := float64(c.TotalFailures) / float64(c.Requests)
				return failRate >= rule.TripFailureRate
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CBState.WithLabelValues(name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(name, to.String()).Set(1)
		},
		IsSuccessful: isSuccessfulForBreaker,
	}

	cb = gobreaker.NewCircuitBreaker[any](st)
	m.m[method] = cb
	return cb
}

// Execute runs fn behind the named breaker. An open breaker surfaces as an
// external-service error.
func Execute[T any](m *Manager, method string, fn func() (T, error)) (T, error) {
	var zero T
	out, err := m.Get(method).Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CBRejectTotal.WithLabelValues(method, err.Error()).Inc()
			return zero, xerr.Wrap(err, xerr.KindExternal, "upstream temporarily unavailable")
		}
		if out == nil {
			return zero, err
		}
		return out.(T), err
	}
	return out.(T), nil
}

// Only errors that say something about upstream health count as failures.
func isSuccessfulForBreaker(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch xerr.KindOf(err) {
	case xerr.KindValidation, xerr.KindNotFound, xerr.KindConflict, xerr.KindForbidden, xerr.KindAuth:
		return true
	default:
		return false
	}
}
