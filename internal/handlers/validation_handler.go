package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpay/eventpay/internal/helpers"
	"github.com/eventpay/eventpay/internal/signing"
	"github.com/eventpay/eventpay/internal/ticketing"
)

type ValidationHandler struct {
	log    *zap.Logger
	ledger *ticketing.Ledger
}

func NewValidationHandler(log *zap.Logger, ledger *ticketing.Ledger) *ValidationHandler {
	return &ValidationHandler{log: log, ledger: ledger}
}

type ValidateTicketRequest struct {
	Reference string           `json:"reference" binding:"required"`
	Payload   *signing.Payload `json:"payload" binding:"required"`
}

// Validate is the gate scanner's entry point. A ticket is consumed on
// the first successful call; every failure mode reports valid=false
// with a reason and leaves the ticket untouched.
func (h *ValidationHandler) Validate(c *gin.Context) {
	var req ValidateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	result, err := h.ledger.ValidateAndConsume(c.Request.Context(), req.Reference, userID.(uuid.UUID), req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, ticketing.ErrTicketNotFound):
			helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		case errors.Is(err, ticketing.ErrNotAuthorized):
			helpers.RespondWithError(c, http.StatusForbidden, "You cannot validate tickets for this event.")
		case result != nil:
			c.JSON(http.StatusOK, gin.H{"valid": false, "reason": result.Reason})
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Validation failed.")
		}
		return
	}

	ticket := result.Ticket
	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"ticket": gin.H{
			"reference":     ticket.Reference,
			"event_name":    ticket.Event.Name,
			"attendee_name": ticket.User.Name,
			"used_at":       ticket.UsedAt,
		},
	})
}

func payloadJSON(payload *signing.Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
