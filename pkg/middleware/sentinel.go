package middleware

import (
	"fmt"
	"net/http"
	"strings"

	sentinels "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/base"
	"github.com/alibaba/sentinel-golang/core/circuitbreaker"
	"github.com/alibaba/sentinel-golang/core/flow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bullrush.com/pkg/common"
	"bullrush.com/pkg/logger"
)

type SentinelConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Flow    []FlowRule    `mapstructure:"flow"`
	Breaker []BreakerRule `mapstructure:"breaker"`
}

// FlowRule caps traffic on one resource, named "METHOD /route/:param".
type FlowRule struct {
	Resource       string  `mapstructure:"resource"`
	Threshold      float64 `mapstructure:"threshold"`
	StatIntervalMs uint32  `mapstructure:"stat_interval_ms"`
	Control        string  `mapstructure:"control"` // reject | throttling
	MaxQueueWaitMs uint32  `mapstructure:"max_queue_wait_ms"`
}

type BreakerRule struct {
	Resource         string  `mapstructure:"resource"`
	Strategy         string  `mapstructure:"strategy"` // error_ratio | error_count | slow_request_ratio
	Threshold        float64 `mapstructure:"threshold"`
	StatIntervalMs   uint32  `mapstructure:"stat_interval_ms"`
	MinRequestAmount uint64  `mapstructure:"min_request_amount"`
	RetryTimeoutMs   uint32  `mapstructure:"retry_timeout_ms"`
	MaxAllowedRtMs   uint64  `mapstructure:"max_allowed_rt_ms"`
}

// InitSentinel starts sentinel and loads the rules. Disabled config is a no-op.
func InitSentinel(c SentinelConfig) error {
	if !c.Enabled {
		return nil
	}
	if err := sentinels.InitDefault(); err != nil {
		return fmt.Errorf("init sentinel: %w", err)
	}

	flowRules := make([]*flow.Rule, 0, len(c.Flow))
	for _, rule := range c.Flow {
		if rule.Resource == "" {
			continue
		}
		r := &flow.Rule{
			Resource:               rule.Resource,
			Threshold:              rule.Threshold,
			StatIntervalInMs:       rule.StatIntervalMs,
			TokenCalculateStrategy: flow.Direct,
			ControlBehavior:        flow.Reject,
		}
		if strings.EqualFold(rule.Control, "throttling") {
			r.ControlBehavior = flow.Throttling
			r.MaxQueueingTimeMs = rule.MaxQueueWaitMs
		}
		flowRules = append(flowRules, r)
	}
	if len(flowRules) > 0 {
		if _, err := flow.LoadRules(flowRules); err != nil {
			return fmt.Errorf("load flow rules: %w", err)
		}
	}

	breakerRules := make([]*circuitbreaker.Rule, 0, len(c.Breaker))
	for _, rule := range c.Breaker {
		if rule.Resource == "" {
			continue
		}
		r := &circuitbreaker.Rule{
			Resource:         rule.Resource,
			Threshold:        rule.Threshold,
			StatIntervalMs:   rule.StatIntervalMs,
			MinRequestAmount: rule.MinRequestAmount,
			RetryTimeoutMs:   rule.RetryTimeoutMs,
			MaxAllowedRtMs:   rule.MaxAllowedRtMs,
		}
		switch strings.ToLower(rule.Strategy) {
		case "error_count":
			r.Strategy = circuitbreaker.ErrorCount
		case "slow_request_ratio":
			r.Strategy = circuitbreaker.SlowRequestRatio
		default:
			r.Strategy = circuitbreaker.ErrorRatio
		}
		breakerRules = append(breakerRules, r)
	}
	if len(breakerRules) > 0 {
		if _, err := circuitbreaker.LoadRules(breakerRules); err != nil {
			return fmt.Errorf("load circuit breaker rules: %w", err)
		}
	}
	return nil
}

// Sentinel guards each route as its own resource. Only 5xx responses count
// towards breaker errors; client mistakes never open a breaker.
func Sentinel() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		resource := c.Request.Method + " " + route

		entry, blocked := sentinels.Entry(resource, sentinels.WithTrafficType(base.Inbound))
		if blocked != nil {
			logger.Warn(c.Request.Context(), "request blocked by sentinel",
				zap.String("resource", resource),
				zap.String("block_type", blocked.BlockType().String()),
			)
			common.Fail(c, http.StatusTooManyRequests, http.StatusTooManyRequests, "service is busy, please try again later")
			c.Abort()
			return
		}
		defer entry.Exit()

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			sentinels.TraceError(entry, fmt.Errorf("%s returned %d", resource, status))
		}
	}
}
