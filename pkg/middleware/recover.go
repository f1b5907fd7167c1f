package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bullrush.com/pkg/common"
	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/xerr"
)

// Recover turns a handler panic into a 500 envelope. Nothing is written when
// the handler already flushed a response.
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(c.Request.Context(), "🚨 http handler panic",
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.String("request_id", common.RequestIDFromGin(c)),
				zap.String("user_id", common.UserIDFromGin(c)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			if !c.Writer.Written() {
				common.Fail(c, http.StatusInternalServerError, xerr.ServerCommonError, xerr.MapErrMsg(xerr.ServerCommonError))
			}
			c.Abort()
		}()
		c.Next()
	}
}
