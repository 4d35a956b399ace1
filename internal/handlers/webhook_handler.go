package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eventpay/eventpay/internal/helpers"
	"github.com/eventpay/eventpay/internal/reconcile"
)

type WebhookHandler struct {
	log        *zap.Logger
	reconciler *reconcile.Reconciler
}

func NewWebhookHandler(log *zap.Logger, reconciler *reconcile.Reconciler) *WebhookHandler {
	return &WebhookHandler{log: log, reconciler: reconciler}
}

type lnbitsWebhookBody struct {
	PaymentHash string `json:"payment_hash" binding:"required"`
	Amount      int64  `json:"amount"`
	Memo        string `json:"memo"`
}

// HandleLNbits receives payment confirmations pushed by the gateway.
// Deliveries are at-least-once; a retried confirmation is answered with
// success without being applied again.
func (h *WebhookHandler) HandleLNbits(c *gin.Context) {
	var body lnbitsWebhookBody
	if err := c.ShouldBindJSON(&body); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "payment_hash is required.")
		return
	}

	result, err := h.reconciler.OnPaymentConfirmed(c.Request.Context(), body.PaymentHash, body.Amount, body.Memo)
	if err != nil {
		h.log.Error("webhook processing failed",
			zap.String("payment_hash", body.PaymentHash),
			zap.Error(err))
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to process confirmation.")
		return
	}

	status := "applied"
	switch {
	case result.Duplicate:
		status = "already_processed"
	case result.Unsolicited && result.TicketID == nil:
		status = "recorded_unmatched"
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
}
