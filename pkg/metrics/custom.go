package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "bullrush"

var (
	RateLimitBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_block_total",
			Help:      "Requests rejected by the http rate limiter.",
		},
		[]string{"route"},
	)

	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_reject_total",
			Help:      "Calls short-circuited by an open breaker.",
		},
		[]string{"method", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"method", "state"}, // closed | open | half-open
	)

	DepositResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposit_verification_total",
			Help:      "Deposit verification outcomes by path and result kind.",
		},
		[]string{"path", "result"}, // path: hash | poll
	)

	SagaCompensationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saga_compensation_failures_total",
			Help:      "Compensating steps that failed and left state for manual repair.",
		},
		[]string{"saga", "step"},
	)

	Withdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Withdrawal lifecycle transitions.",
		},
		[]string{"method", "status"},
	)

	ReferralBonuses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referral_bonus_total",
			Help:      "Referral bonus rows written.",
		},
		[]string{"level", "type"},
	)

	ActivePollers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deposit_pollers_active",
			Help:      "Deposit requests currently being polled.",
		},
	)
)

// MustRegister adds the business collectors to the default registry.
func MustRegister() {
	prometheus.MustRegister(
		RateLimitBlocked, CBRejectTotal, CBState,
		DepositResults, SagaCompensationFailures, Withdrawals, ReferralBonuses, ActivePollers,
	)
}
