package tron

import (
	"context"
	"strings"
	"time"

	"bullrush.com/pkg/metrics"
	"bullrush.com/pkg/ratelimit"
	"bullrush.com/pkg/xerr"
)

const (
	callTx      = "tron.tx"
	callGrid    = "tron.grid"
	callSend    = "tron.send"
	callBalance = "tron.balance"
)

func newBreakers() *ratelimit.Manager {
	return ratelimit.NewManager(
		ratelimit.Rule{
			MaxRequests:             3,
			Interval:                30 * time.Second,
			Timeout:                 15 * time.Second,
			TripConsecutiveFailures: 5,
		},
		map[string]ratelimit.Rule{
			// a send that trips should stay open longer than the reads
			callSend: {MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, TripConsecutiveFailures: 3},
		},
	)
}

// call runs fn behind the named breaker and records its latency.
func call[T any](ctx context.Context, o *Oracle, name string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	start := time.Now()
	v, err := ratelimit.Execute(o.breakers, name, fn)
	metrics.ObserveUpstream(name, start, err)
	return v, err
}

// nodeErr classifies a node error; "not found" replies become NotFound so the
// breaker does not count them.
func nodeErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return xerr.Wrap(err, xerr.KindNotFound, msg+": not found")
	}
	return xerr.Wrap(err, xerr.KindExternal, msg)
}
