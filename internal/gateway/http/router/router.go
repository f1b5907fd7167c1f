package router

import (
	"github.com/gin-gonic/gin"

	"bullrush.com/internal/gateway/handler"
)

// Handlers carries everything the route groups mount.
type Handlers struct {
	Deposit    *handler.Deposit
	Withdrawal *handler.Withdrawal
	Referral   *handler.Referral
	Admin      *handler.Admin
	Webhook    *handler.Webhook

	// Auth authenticates users; AdminOnly runs after it on admin routes.
	Auth      gin.HandlerFunc
	AdminOnly gin.HandlerFunc
}

func Health(api *gin.RouterGroup) {
	api.GET("/health", handler.Health)
}
