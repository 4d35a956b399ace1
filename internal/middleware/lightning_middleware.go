package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/eventpay/eventpay/internal/lightning"
)

func LightningMiddleware(client *lightning.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lightning_client", client)
		c.Next()
	}
}

func GetLightningClient(c *gin.Context) *lightning.Client {
	client, exists := c.Get("lightning_client")
	if !exists {
		return nil
	}
	return client.(*lightning.Client)
}
