package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpay/eventpay/internal/helpers"
	"github.com/eventpay/eventpay/internal/models"
)

type CreateEventRequest struct {
	Name     string    `json:"name" binding:"required"`
	Date     time.Time `json:"date" binding:"required"`
	Location string    `json:"location" binding:"required"`
}

type CreatePlanRequest struct {
	Label                string `json:"label" binding:"required"`
	PriceSats            int64  `json:"price_sats" binding:"required,min=1"`
	Quantity             int    `json:"quantity" binding:"required,min=1"`
	InstallmentAllowed   bool   `json:"installment_allowed"`
	MaxInstallments      int    `json:"max_installments"`
	MinInstallmentAmount int64  `json:"min_installment_amount"`
}

func CreateEvent(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	event := models.Event{
		ID:       uuid.New(),
		Name:     req.Name,
		Date:     req.Date,
		Location: req.Location,
		UserID:   userID.(uuid.UUID),
	}

	if err := gormDB.Create(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create event.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Event created successfully.",
		"event_id": event.ID,
	})
}

func GetEvent(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Preload("Plans").Where("id = ?", c.Param("id")).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving event.")
		return
	}

	c.JSON(http.StatusOK, event)
}

func ListEvents(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	page, err := helpers.StringToInt(c.DefaultQuery("page", "1"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid page number.")
		return
	}
	limit, err := helpers.StringToInt(c.DefaultQuery("limit", "10"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid limit.")
		return
	}

	query := gormDB.Model(&models.Event{})
	if location := c.Query("location"); location != "" {
		query = query.Where("location = ?", location)
	}
	if c.Query("upcoming") != "false" {
		query = query.Where("date > ?", time.Now())
	}

	var totalCount int64
	query.Count(&totalCount)

	var events []models.Event
	offset := (page - 1) * limit
	err = query.Preload("Plans").Offset(offset).Limit(limit).Order("date ASC").Find(&events).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving events.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":      events,
		"total":       totalCount,
		"page":        page,
		"limit":       limit,
		"total_pages": (totalCount + int64(limit) - 1) / int64(limit),
	})
}

func CreatePlan(c *gin.Context) {
	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Event not found or you don't have permission to add plans.")
		return
	}

	plan := models.TicketPlan{
		EventID:              event.ID,
		Label:                req.Label,
		PriceSats:            req.PriceSats,
		Quantity:             req.Quantity,
		InstallmentAllowed:   req.InstallmentAllowed,
		MaxInstallments:      req.MaxInstallments,
		MinInstallmentAmount: req.MinInstallmentAmount,
	}

	if err := gormDB.Create(&plan).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create ticket plan.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Ticket plan created successfully.",
		"plan_id": plan.ID,
	})
}

func ListEventPlans(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var plans []models.TicketPlan
	if err := gormDB.Where("event_id = ?", c.Param("id")).Find(&plans).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to fetch plans.")
		return
	}

	out := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		out = append(out, gin.H{
			"id":                     plan.ID,
			"label":                  plan.Label,
			"price_sats":             plan.PriceSats,
			"quantity":               plan.Quantity,
			"remaining":              plan.Remaining(),
			"installment_allowed":    plan.InstallmentAllowed,
			"max_installments":       plan.MaxInstallments,
			"min_installment_amount": plan.MinInstallmentAmount,
		})
	}

	c.JSON(http.StatusOK, gin.H{"plans": out})
}

func ListOrganizerEvents(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var events []models.Event
	if err := gormDB.Preload("Plans").Where("user_id = ?", userID).Order("date ASC").Find(&events).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving events.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func OrganizerEventStats(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "Event not found or you don't have permission to view stats.")
		return
	}

	var stats struct {
		TotalTickets int64
		TotalSats    int64
	}
	err := gormDB.Model(&models.Ticket{}).
		Select("COUNT(*) as total_tickets, COALESCE(SUM(amount_paid_sats), 0) as total_sats").
		Where("event_id = ?", event.ID).
		Scan(&stats).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to compute stats.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":      event.ID,
		"total_tickets": stats.TotalTickets,
		"total_sats":    stats.TotalSats,
	})
}
