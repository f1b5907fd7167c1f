package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"bullrush.com/pkg/common"
	"bullrush.com/pkg/logger"
)

const maxRequestIDLen = 64

// ReqId propagates X-Request-Id so log lines and the client agree on one id.
// Missing or oversized ids are replaced.
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.HeaderRequestID)
		if rid == "" || len(rid) > maxRequestIDLen {
			rid = common.New()
		}
		c.Set(common.CtxKeyRequestID, rid)
		c.Header(common.HeaderRequestID, rid)
		//nolint:staticcheck // logger reads the plain string key
		ctx := context.WithValue(c.Request.Context(), logger.RequestIdKey, rid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
