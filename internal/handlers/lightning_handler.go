package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/eventpay/eventpay/internal/helpers"
	"github.com/eventpay/eventpay/internal/lightning"
	"github.com/eventpay/eventpay/internal/middleware"
	"github.com/eventpay/eventpay/internal/reconcile"
)

// LightningHandler exposes wallet operations against the LNbits node
// and the poll-based payment check that doubles as a reconciliation
// fallback when a webhook never arrived.
type LightningHandler struct {
	log        *zap.Logger
	reconciler *reconcile.Reconciler
}

func NewLightningHandler(log *zap.Logger, reconciler *reconcile.Reconciler) *LightningHandler {
	return &LightningHandler{log: log, reconciler: reconciler}
}

func (h *LightningHandler) client(c *gin.Context) *lightning.Client {
	client := middleware.GetLightningClient(c)
	if client == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Lightning client not found.")
	}
	return client
}

func (h *LightningHandler) Balance(c *gin.Context) {
	client := h.client(c)
	if client == nil {
		return
	}

	wallet, err := client.WalletBalance(c.Request.Context())
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to get wallet balance.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": wallet})
}

// CheckPayment polls the gateway for one invoice and, when it settled,
// feeds the confirmation through the reconciler exactly as a webhook
// delivery would be.
func (h *LightningHandler) CheckPayment(c *gin.Context) {
	client := h.client(c)
	if client == nil {
		return
	}

	paymentHash := c.Param("hash")
	paid, amount, err := client.CheckPayment(c.Request.Context(), paymentHash)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to check payment status.")
		return
	}

	if !paid {
		c.JSON(http.StatusOK, gin.H{"success": true, "paid": false})
		return
	}

	result, err := h.reconciler.OnPaymentConfirmed(c.Request.Context(), paymentHash, amount, "")
	if err != nil {
		h.log.Error("failed to apply polled confirmation",
			zap.String("payment_hash", paymentHash),
			zap.Error(err))
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to apply confirmed payment.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"paid":              true,
		"already_processed": result.Duplicate,
	})
}

type createInvoiceRequest struct {
	Amount int64  `json:"amount" binding:"required,min=1"`
	Memo   string `json:"memo"`
	Expiry int    `json:"expiry"`
}

// CreateInvoice mints a standalone incoming invoice, unattached to any
// ticket. The response includes the payment request rendered as a QR
// data URL so wallet apps can scan it directly.
func (h *LightningHandler) CreateInvoice(c *gin.Context) {
	client := h.client(c)
	if client == nil {
		return
	}

	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Amount is required.")
		return
	}

	invoice, err := client.CreateInvoice(c.Request.Context(), req.Amount, req.Memo, req.Expiry)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to create invoice.")
		return
	}

	png, err := qrcode.Encode(invoice.PaymentRequest, qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to render invoice QR.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"payment_request": invoice.PaymentRequest,
			"payment_hash":    invoice.PaymentHash,
			"amount":          req.Amount,
			"qr":              "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		},
	})
}

type payInvoiceRequest struct {
	Bolt11 string `json:"bolt11" binding:"required"`
}

func (h *LightningHandler) PayInvoice(c *gin.Context) {
	client := h.client(c)
	if client == nil {
		return
	}

	var req payInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "bolt11 invoice is required.")
		return
	}

	payment, err := client.PayInvoice(c.Request.Context(), req.Bolt11)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to pay invoice.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": payment})
}

func (h *LightningHandler) DecodeInvoice(c *gin.Context) {
	client := h.client(c)
	if client == nil {
		return
	}

	var req payInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "bolt11 invoice is required.")
		return
	}

	decoded, err := client.DecodeInvoice(c.Request.Context(), req.Bolt11)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to decode invoice.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": decoded})
}

func (h *LightningHandler) PaymentHistory(c *gin.Context) {
	client := h.client(c)
	if client == nil {
		return
	}

	limit, err := helpers.StringToInt(c.DefaultQuery("limit", "50"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid limit.")
		return
	}

	payments, err := client.Payments(c.Request.Context(), limit)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to get payment history.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": payments})
}

type createWalletRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *LightningHandler) CreateWallet(c *gin.Context) {
	client := h.client(c)
	if client == nil {
		return
	}

	var req createWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Wallet name is required.")
		return
	}

	wallet, err := client.CreateWallet(c.Request.Context(), req.Name)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to create wallet.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": wallet})
}
