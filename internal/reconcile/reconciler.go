package reconcile

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eventpay/eventpay/internal/models"
	"github.com/eventpay/eventpay/internal/ticketing"
)

// Invoice memos carry the ticket reference so an unsolicited
// confirmation can still be correlated back to its ticket.
var memoReference = regexp.MustCompile(`TKT-[0-9A-F]{8}`)

// PaymentChecker is the slice of the gateway the reconciler needs for
// poll-based replay of pending payments.
type PaymentChecker interface {
	CheckPayment(ctx context.Context, paymentHash string) (paid bool, amountSats int64, err error)
}

// Result reports what a confirmation did.
type Result struct {
	Duplicate   bool
	Unsolicited bool
	TicketID    *uuid.UUID
}

// Reconciler turns the gateway's at-least-once stream of payment
// confirmations into exactly-once ledger credits, deduplicated by
// payment hash.
type Reconciler struct {
	db     *gorm.DB
	log    *zap.Logger
	ledger *ticketing.Ledger
}

func NewReconciler(db *gorm.DB, log *zap.Logger, ledger *ticketing.Ledger) *Reconciler {
	return &Reconciler{db: db, log: log, ledger: ledger}
}

// OnPaymentConfirmed applies one inbound confirmation event, whether
// delivered by webhook or discovered by polling. Marking the payment
// record confirmed and crediting the ticket commit in one transaction;
// a redelivered confirmation is answered with success without touching
// the ledger again.
func (r *Reconciler) OnPaymentConfirmed(ctx context.Context, paymentHash string, amountSats int64, memo string) (*Result, error) {
	result := &Result{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.PaymentRecord
		err := tx.First(&record, "payment_hash = ?", paymentHash).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.recordUnsolicited(tx, paymentHash, amountSats, memo, result)
		}
		if err != nil {
			return err
		}

		now := time.Now()
		flipped := tx.Model(&models.PaymentRecord{}).
			Where("id = ? AND status = ?", record.ID, models.PaymentPending).
			Updates(map[string]any{"status": models.PaymentConfirmed, "paid_at": now})
		if flipped.Error != nil {
			return flipped.Error
		}
		if flipped.RowsAffected == 0 {
			// Webhook retry for an already applied confirmation.
			result.Duplicate = true
			result.TicketID = record.TicketID
			return nil
		}

		if record.TicketID == nil {
			return nil
		}
		result.TicketID = record.TicketID
		return r.ledger.RecordPaymentIn(tx, *record.TicketID, record.AmountSats)
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		r.log.Info("duplicate payment confirmation ignored", zap.String("payment_hash", paymentHash))
	}
	return result, nil
}

// recordUnsolicited handles a confirmation for a payment the system
// never minted an invoice for. It is kept for audit either way, and
// credited to a ticket only when the memo resolves to one.
func (r *Reconciler) recordUnsolicited(tx *gorm.DB, paymentHash string, amountSats int64, memo string, result *Result) error {
	result.Unsolicited = true
	now := time.Now()

	record := &models.PaymentRecord{
		PaymentHash: paymentHash,
		AmountSats:  amountSats,
		Memo:        memo,
		Status:      models.PaymentConfirmed,
		PaidAt:      &now,
	}

	if reference := memoReference.FindString(memo); reference != "" {
		var ticket models.Ticket
		err := tx.First(&ticket, "reference = ?", reference).Error
		if err == nil {
			record.TicketID = &ticket.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	if err := tx.Create(record).Error; err != nil {
		return err
	}

	r.log.Warn("unsolicited payment confirmation",
		zap.String("payment_hash", paymentHash),
		zap.Int64("amount_sats", amountSats),
		zap.Bool("correlated", record.TicketID != nil))

	if record.TicketID == nil {
		return nil
	}
	result.TicketID = record.TicketID
	return r.ledger.RecordPaymentIn(tx, *record.TicketID, amountSats)
}

// CheckPending polls the gateway for every pending payment record and
// applies the ones that settled. It is the replay path for webhook
// deliveries that were lost or arrived before the invoice transaction
// committed. Gateway failures leave the record pending for the next
// sweep; a confirmed payment is never dropped.
func (r *Reconciler) CheckPending(ctx context.Context, checker PaymentChecker) (int, error) {
	var pending []models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PaymentPending).
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range pending {
		record := &pending[i]
		paid, amount, err := checker.CheckPayment(ctx, record.PaymentHash)
		if err != nil {
			r.log.Warn("payment check failed, will retry",
				zap.String("payment_hash", record.PaymentHash),
				zap.Error(err))
			continue
		}
		if !paid {
			continue
		}
		if amount == 0 {
			amount = record.AmountSats
		}
		if _, err := r.OnPaymentConfirmed(ctx, record.PaymentHash, amount, record.Memo); err != nil {
			r.log.Error("failed to apply confirmed payment",
				zap.String("payment_hash", record.PaymentHash),
				zap.Error(err))
			continue
		}
		applied++
	}

	return applied, nil
}
