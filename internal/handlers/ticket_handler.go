package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eventpay/eventpay/internal/helpers"
	"github.com/eventpay/eventpay/internal/lightning"
	"github.com/eventpay/eventpay/internal/models"
	"github.com/eventpay/eventpay/internal/signing"
	"github.com/eventpay/eventpay/internal/ticketing"
)

type TicketHandler struct {
	db     *gorm.DB
	log    *zap.Logger
	ledger *ticketing.Ledger
	signer *signing.Signer
	ln     *lightning.Client
}

func NewTicketHandler(db *gorm.DB, log *zap.Logger, ledger *ticketing.Ledger, signer *signing.Signer, ln *lightning.Client) *TicketHandler {
	return &TicketHandler{db: db, log: log, ledger: ledger, signer: signer, ln: ln}
}

type ReserveTicketRequest struct {
	EventID       uuid.UUID `json:"event_id" binding:"required"`
	PlanID        uuid.UUID `json:"plan_id" binding:"required"`
	PaymentMethod string    `json:"payment_method"`
	Installments  int       `json:"installments"`
}

type CreateInvoiceRequest struct {
	Amount int64  `json:"amount" binding:"required,min=1"`
	Memo   string `json:"memo"`
}

func (h *TicketHandler) Reserve(c *gin.Context) {
	var req ReserveTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	method := req.PaymentMethod
	if method == "" {
		method = ticketing.PaymentMethodFull
	}

	ticket, err := h.ledger.Reserve(c.Request.Context(), req.EventID, req.PlanID, userID.(uuid.UUID), method, req.Installments)
	if err != nil {
		switch {
		case errors.Is(err, ticketing.ErrEventNotFound), errors.Is(err, ticketing.ErrPlanNotFound):
			helpers.RespondWithError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, ticketing.ErrEventClosed),
			errors.Is(err, ticketing.ErrSoldOut),
			errors.Is(err, ticketing.ErrInstallmentsNotAllowed):
			helpers.RespondWithError(c, http.StatusConflict, err.Error())
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to reserve ticket.")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ticket": gin.H{
			"id":               ticket.ID,
			"reference":        ticket.Reference,
			"total_amount":     ticket.TotalAmountSats,
			"status":           ticket.Status,
			"payment_method":   method,
			"installment_plan": ticket.InstallmentPlan,
		},
	})
}

func (h *TicketHandler) MyTickets(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	var tickets []models.Ticket
	err := h.db.WithContext(c.Request.Context()).
		Preload("Event").Preload("Plan").
		Where("user_id = ? AND status != ?", userID, models.TicketUsed).
		Order("created_at DESC").
		Find(&tickets).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to fetch tickets.")
		return
	}

	out := make([]gin.H, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, gin.H{
			"id":               t.ID,
			"reference":        t.Reference,
			"status":           t.Status,
			"event":            t.Event.Name,
			"location":         t.Event.Location,
			"date":             t.Event.Date,
			"plan":             t.Plan.Label,
			"amount_paid":      t.AmountPaidSats,
			"total_amount":     t.TotalAmountSats,
			"installment_plan": t.InstallmentPlan,
		})
	}

	c.JSON(http.StatusOK, gin.H{"tickets": out})
}

// CreateInvoice mints a Lightning invoice for a partial or full payment
// on the caller's ticket. The amount is validated against the
// installment plan and the remaining balance before the gateway is
// asked for an invoice.
func (h *TicketHandler) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid amount.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	var ticket models.Ticket
	err = h.db.WithContext(c.Request.Context()).
		Preload("Plan").
		Where("id = ? AND user_id = ?", ticketID, userID).
		First(&ticket).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		return
	}

	amount, err := ticketing.ValidateInstallmentAmount(&ticket, &ticket.Plan, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ticketing.ErrAlreadyPaid):
			helpers.RespondWithError(c, http.StatusConflict, "Ticket is already fully paid.")
		case errors.Is(err, ticketing.ErrBelowMinimum):
			helpers.RespondWithError(c, http.StatusBadRequest,
				fmt.Sprintf("Minimum installment amount is %d sats.", ticket.Plan.MinInstallmentAmount))
		default:
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid amount.")
		}
		return
	}

	memo := req.Memo
	if memo == "" {
		memo = fmt.Sprintf("Payment for ticket %s", ticket.Reference)
	} else {
		memo = fmt.Sprintf("%s (%s)", memo, ticket.Reference)
	}

	invoice, err := h.ln.CreateInvoice(c.Request.Context(), amount, memo, 3600)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Payment gateway unavailable, try again.")
		return
	}

	expiresAt := time.Now().Add(time.Hour)
	record := models.PaymentRecord{
		TicketID:       &ticket.ID,
		PaymentRequest: invoice.PaymentRequest,
		PaymentHash:    invoice.PaymentHash,
		AmountSats:     amount,
		Memo:           memo,
		Status:         models.PaymentPending,
		ExpiresAt:      &expiresAt,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&record).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to record invoice.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoice": gin.H{
			"payment_request": invoice.PaymentRequest,
			"payment_hash":    invoice.PaymentHash,
			"amount":          amount,
			"expires_in":      3600,
			"memo":            memo,
		},
	})
}

// TicketQR renders the signed payload of a fully paid ticket as a PNG
// QR code. Issuance happens here: the first call generates and persists
// the ticket's salt, later calls reuse it.
func (h *TicketHandler) TicketQR(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	var ticket models.Ticket
	err = h.db.WithContext(c.Request.Context()).
		Preload("User").
		Where("id = ? AND user_id = ?", ticketID, userID).
		First(&ticket).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		return
	}

	if ticket.Status != models.TicketPaid {
		helpers.RespondWithError(c, http.StatusConflict, "Ticket is not fully paid yet.")
		return
	}

	buyer := ticket.User.LnAddress
	if buyer == "" {
		buyer = ticket.User.Email
	}
	progress := fmt.Sprintf("%d/%d sats", ticket.AmountPaidSats, ticket.TotalAmountSats)

	payload, err := h.signer.Issue(c.Request.Context(), ticket.EventID, ticket.ID, buyer, progress)
	if err != nil {
		h.log.Error("payload issuance failed", zap.String("ticket_id", ticket.ID.String()), zap.Error(err))
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to issue ticket payload.")
		return
	}

	data, err := payloadJSON(payload)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to encode ticket payload.")
		return
	}

	png, err := qrcode.Encode(data, qrcode.High, 300)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code.")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
