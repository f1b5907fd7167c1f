package router

import "github.com/gin-gonic/gin"

func Deposit(api *gin.RouterGroup, h Handlers) {
	deposit := api.Group("/deposit", h.Auth)
	{
		deposit.POST("/initiate", h.Deposit.Initiate)
		deposit.POST("/submit-tx-hash", h.Deposit.SubmitTxHash)
		deposit.POST("/verify", h.Deposit.Verify)
	}
}
