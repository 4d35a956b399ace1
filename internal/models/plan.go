package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TicketPlan struct {
	gorm.Model
	ID                   uuid.UUID `gorm:"type:uuid;primary_key"`
	EventID              uuid.UUID `gorm:"type:uuid;not null;index"`
	Event                Event
	Label                string `gorm:"not null"`
	PriceSats            int64  `gorm:"not null"`
	Quantity             int    `gorm:"not null"`
	Sold                 int    `gorm:"not null;default:0"`
	InstallmentAllowed   bool   `gorm:"not null;default:false"`
	MaxInstallments      int
	MinInstallmentAmount int64
}

func (plan *TicketPlan) BeforeCreate(tx *gorm.DB) (err error) {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	return
}

func (plan *TicketPlan) Remaining() int {
	return plan.Quantity - plan.Sold
}

type InstallmentPlan struct {
	TotalInstallments int       `json:"total_installments"`
	InstallmentAmount int64     `json:"installment_amount"`
	PaymentsMade      int       `json:"payments_made"`
	NextPaymentDue    time.Time `json:"next_payment_due"`
}
