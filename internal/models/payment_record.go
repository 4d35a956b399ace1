package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PaymentPending   = "pending"
	PaymentConfirmed = "confirmed"
)

// PaymentHash is the gateway's identifier for the invoice and the
// deduplication key for reconciliation. TicketID is nullable so that
// unsolicited confirmations can still be recorded for audit.
type PaymentRecord struct {
	gorm.Model
	ID             uuid.UUID  `gorm:"type:uuid;primary_key"`
	TicketID       *uuid.UUID `gorm:"type:uuid;index"`
	Ticket         *Ticket
	PaymentRequest string
	PaymentHash    string `gorm:"unique;not null"`
	AmountSats     int64  `gorm:"not null"`
	Memo           string
	Status         string `gorm:"not null;default:'pending'"`
	ExpiresAt      *time.Time
	PaidAt         *time.Time
}

func (payment *PaymentRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return
}
