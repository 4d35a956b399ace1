package ticketing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventpay/eventpay/internal/models"
	"github.com/eventpay/eventpay/internal/signing"
)

// saltStore keeps each ticket's secret salt on the ticket row. Writes
// are conditional on the column being empty so an issued salt is never
// overwritten.
type saltStore struct {
	db *gorm.DB
}

func NewSaltStore(db *gorm.DB) signing.SaltStore {
	return &saltStore{db: db}
}

func (s *saltStore) SaltForTicket(ctx context.Context, ticketID uuid.UUID) (string, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).Select("secret_salt").First(&ticket, "id = ?", ticketID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", signing.ErrSaltNotFound
		}
		return "", err
	}
	if ticket.SecretSalt == "" {
		return "", signing.ErrSaltNotFound
	}
	return ticket.SecretSalt, nil
}

func (s *saltStore) StoreSalt(ctx context.Context, ticketID uuid.UUID, salt string) error {
	res := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND (secret_salt IS NULL OR secret_salt = '')", ticketID).
		UpdateColumn("secret_salt", salt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("ticketing: salt already issued for ticket")
	}
	return nil
}
