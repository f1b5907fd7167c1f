package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxKeyRequestID = "request_id"
	CtxKeyUserID    = "user_id"
)

func New() string { return uuid.NewString() }

func RequestIDFromGin(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// UserIDFromGin returns the authenticated user id set by the auth middleware.
func UserIDFromGin(c *gin.Context) string {
	return c.GetString(CtxKeyUserID)
}
