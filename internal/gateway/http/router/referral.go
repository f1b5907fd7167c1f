package router

import "github.com/gin-gonic/gin"

func Referral(api *gin.RouterGroup, h Handlers) {
	referral := api.Group("/referral", h.Auth)
	{
		referral.POST("/apply", h.Referral.Apply)
	}
}

// Webhook routes authenticate by signature, not bearer token.
func Webhook(api *gin.RouterGroup, h Handlers) {
	hooks := api.Group("/webhooks")
	{
		hooks.POST("/identity", h.Webhook.Identity)
	}
}
