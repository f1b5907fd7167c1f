package common

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/xerr"
)

// Response is the envelope every JSON endpoint returns.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailErr renders err through its xerr kind and code. Internal errors are logged
// with a stack; the client only sees the safe message.
func FailErr(c *gin.Context, err error) {
	status := xerr.HTTPStatus(err)
	code := xerr.CodeOf(err)
	msg := xerr.MessageOf(err)
	if status >= http.StatusInternalServerError {
		FailLogged(c, status, code, msg, err)
		return
	}
	logger.Info(c.Request.Context(), "http request rejected",
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.Error(err),
	)
	Fail(c, status, code, msg)
}

func FailLogged(c *gin.Context, httpStatus int, code int, msg string, err error) {
	logger.Warn(c.Request.Context(), "http error",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.String("message", msg),
		zap.Error(err),
		zap.ByteString("stack", debug.Stack()),
	)
	Fail(c, httpStatus, code, msg)
}
