package router

import "github.com/gin-gonic/gin"

func Withdrawal(api *gin.RouterGroup, h Handlers) {
	withdrawal := api.Group("/withdrawal", h.Auth)
	{
		withdrawal.POST("/request", h.Withdrawal.Request)
	}
	admin := withdrawal.Group("", h.AdminOnly)
	{
		admin.GET("/withdrawals", h.Withdrawal.List)
		admin.POST("/process", h.Withdrawal.Process)
		admin.GET("/wallets", h.Withdrawal.ListWallets)
		admin.POST("/wallets", h.Withdrawal.AddWallet)
		admin.POST("/wallets/derive", h.Withdrawal.DeriveWallet)
	}
}
