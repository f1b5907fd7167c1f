package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	DbPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "app_db_pool_open",
		Help: "Current open DB connections",
	})
	DbPoolIdle         = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_db_pool_idle"})
	DbPoolInuse        = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_db_pool_inuse"})
	DbPoolWaitCount    = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_db_pool_wait_count"})
	DbPoolWaitDuration = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_db_pool_wait_seconds"})

	RedisPoolTotal    = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_total"})
	RedisPoolIdle     = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_idle"})
	RedisPoolHits     = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_hits"})
	RedisPoolTimeouts = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_timeouts"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_upstream_duration_seconds",
		Help:    "Chain oracle call latency",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"call", "status"})
)

// CollectPools samples connection pool stats until ctx is done. rdb may be nil.
func CollectPools(ctx context.Context, db *sql.DB, rdb *redis.Client, every time.Duration) {
	if every <= 0 {
		every = 15 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		samplePools(db, rdb)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func samplePools(db *sql.DB, rdb *redis.Client) {
	if db != nil {
		s := db.Stats()
		DbPoolOpen.Set(float64(s.OpenConnections))
		DbPoolIdle.Set(float64(s.Idle))
		DbPoolInuse.Set(float64(s.InUse))
		DbPoolWaitCount.Set(float64(s.WaitCount))
		DbPoolWaitDuration.Set(s.WaitDuration.Seconds())
	}
	if rdb != nil {
		s := rdb.PoolStats()
		RedisPoolTotal.Set(float64(s.TotalConns))
		RedisPoolIdle.Set(float64(s.IdleConns))
		RedisPoolHits.Set(float64(s.Hits))
		RedisPoolTimeouts.Set(float64(s.Timeouts))
	}
}

// ObserveUpstream records the latency of one oracle call.
func ObserveUpstream(call string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	UpstreamDuration.WithLabelValues(call, status).Observe(time.Since(start).Seconds())
}
