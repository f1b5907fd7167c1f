// Package handler adapts HTTP requests to the payment services.
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"bullrush.com/pkg/common"
	"bullrush.com/pkg/xerr"
)

// Page is the paged list envelope.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		common.FailErr(c, xerr.Wrap(err, xerr.KindValidation, "invalid request body"))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func paging(c *gin.Context) (int, int) {
	return queryInt(c, "page", 1), queryInt(c, "pageSize", 20)
}
