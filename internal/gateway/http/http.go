package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"bullrush.com/internal/gateway/config"
	"bullrush.com/internal/gateway/http/router"
	"bullrush.com/pkg/middleware"
	"bullrush.com/pkg/ratelimit"
)

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// NewEngine builds the gin engine. ctx bounds the rate limiter janitor.
func NewEngine(ctx context.Context, name string, cfg config.HTTPConfig, h router.Handlers) *gin.Engine {
	rps, burst := cfg.RateRPS, cfg.RateBurst
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = 100
	}
	// per client ip
	store := ratelimit.NewStore(rate.Limit(rps), burst, 10*time.Minute)
	store.StartJanitor(ctx, time.Minute)

	r := gin.New()
	// serves /metrics
	p := ginprom.NewPrometheus("bullrush")
	p.Use(r)
	r.Use(
		otelgin.Middleware(name),
		middleware.ReqId(),
		corsMiddleware(cfg.AllowedOrigins),
		middleware.Recover(),
		middleware.RateLimit(store),
	)
	if cfg.Sentinel.Enabled {
		r.Use(middleware.Sentinel())
	}
	api := r.Group("/api")
	router.Health(api)
	router.Deposit(api, h)
	router.Withdrawal(api, h)
	router.Referral(api, h)
	router.Webhook(api, h)
	router.Admin(api, h)
	return r
}

func NewServer(ctx context.Context, name string, cfg config.HTTPConfig, h router.Handlers) *http.Server {
	rt, wt := cfg.ReadTimeout, cfg.WriteTimeout
	if rt <= 0 {
		rt = 10 * time.Second
	}
	// on-chain sends wait for broadcast
	if wt <= 0 {
		wt = 30 * time.Second
	}
	return &http.Server{
		Addr:           cfg.Addr,
		Handler:        NewEngine(ctx, name, cfg, h),
		ReadTimeout:    rt,
		WriteTimeout:   wt,
		MaxHeaderBytes: 1 << 20,
	}
}
