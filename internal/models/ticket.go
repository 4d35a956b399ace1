package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TicketReserved  = "reserved"
	TicketPartial   = "partial"
	TicketPaid      = "paid"
	TicketUsed      = "used"
	TicketCancelled = "cancelled"
)

type Ticket struct {
	gorm.Model
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	Reference       string    `gorm:"unique;not null"`
	UserID          uuid.UUID `gorm:"type:uuid;not null;index"`
	User            User
	EventID         uuid.UUID `gorm:"type:uuid;not null;index"`
	Event           Event
	PlanID          uuid.UUID `gorm:"type:uuid;not null;index"`
	Plan            TicketPlan `gorm:"foreignKey:PlanID"`
	TotalAmountSats int64      `gorm:"not null"`
	AmountPaidSats  int64      `gorm:"not null;default:0"`
	Status          string     `gorm:"not null;default:'reserved'"`
	InstallmentPlan *InstallmentPlan `gorm:"serializer:json"`
	SecretSalt      string           `json:"-"`
	UsedAt          *time.Time
}

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}

func (ticket *Ticket) RemainingSats() int64 {
	return ticket.TotalAmountSats - ticket.AmountPaidSats
}
