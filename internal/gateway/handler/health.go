package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"bullrush.com/pkg/common"
)

func Health(c *gin.Context) {
	common.Success(c, gin.H{"status": "ok", "time": time.Now().UTC()})
}
