package router

import "github.com/gin-gonic/gin"

func Admin(api *gin.RouterGroup, h Handlers) {
	admin := api.Group("/admin", h.Auth, h.AdminOnly)
	{
		admin.GET("/stats", h.Admin.Stats)
		admin.GET("/users", h.Admin.Users)
		admin.GET("/users/search", h.Admin.Search)
		admin.PUT("/users/:userId/balance", h.Admin.AdjustBalance)
		admin.PUT("/users/:userId/status", h.Admin.ToggleActive)
		admin.GET("/users/:userId/transactions", h.Admin.History)
	}
}
