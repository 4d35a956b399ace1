package middleware

import (
	"crypto/hmac"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eventpay/eventpay/internal/helpers"
)

// WebhookAuthMiddleware gates inbound payment confirmations behind a
// shared secret. Without it any caller could forge a "payment
// confirmed" event.
func WebhookAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Webhook-Token")
		if token == "" || !hmac.Equal([]byte(token), []byte(secret)) {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid webhook token.")
			c.Abort()
			return
		}
		c.Next()
	}
}
