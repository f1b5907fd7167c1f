package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"bullrush.com/pkg/common"
	"bullrush.com/pkg/xerr"
)

// AdminChecker answers whether a user may use admin endpoints.
type AdminChecker interface {
	IsActiveAdmin(ctx context.Context, userID string) (bool, error)
}

// AdminOnly must run after Auth.
func AdminOnly(checker AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := common.UserIDFromGin(c)
		if uid == "" {
			common.Fail(c, http.StatusUnauthorized, xerr.Unauthorized, "unauthorized")
			c.Abort()
			return
		}
		ok, err := checker.IsActiveAdmin(c.Request.Context(), uid)
		if err != nil {
			common.FailErr(c, err)
			c.Abort()
			return
		}
		if !ok {
			common.Fail(c, http.StatusForbidden, xerr.Forbidden, "admin only")
			c.Abort()
			return
		}
		c.Next()
	}
}
