package ticketing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eventpay/eventpay/internal/helpers"
	"github.com/eventpay/eventpay/internal/models"
	"github.com/eventpay/eventpay/internal/signing"
)

const (
	PaymentMethodFull        = "full"
	PaymentMethodInstallment = "installment"

	// Bounded attempts for the optimistic per-ticket update loop.
	updateAttempts = 5
)

// PayloadVerifier checks the authenticity of a presented ticket payload.
type PayloadVerifier interface {
	Verify(ctx context.Context, payload *signing.Payload) error
}

// Ledger is the authoritative state machine for tickets. All mutations
// of a ticket's payment progress go through it, serialized per ticket by
// optimistic conditional updates.
type Ledger struct {
	db       *gorm.DB
	log      *zap.Logger
	verifier PayloadVerifier
}

func NewLedger(db *gorm.DB, log *zap.Logger, verifier PayloadVerifier) *Ledger {
	return &Ledger{db: db, log: log, verifier: verifier}
}

// Reserve creates a ticket bound to the plan at its current price.
// Capacity is claimed with a conditional increment on the plan row so
// two buyers can never both take the last slot.
func (l *Ledger) Reserve(ctx context.Context, eventID, planID, buyerID uuid.UUID, paymentMethod string, requestedInstallments int) (*models.Ticket, error) {
	var event models.Event
	if err := l.db.WithContext(ctx).First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if !event.Date.After(time.Now()) {
		return nil, ErrEventClosed
	}

	var plan models.TicketPlan
	if err := l.db.WithContext(ctx).First(&plan, "id = ? AND event_id = ?", planID, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	var installmentPlan *models.InstallmentPlan
	if paymentMethod == PaymentMethodInstallment {
		if !plan.InstallmentAllowed {
			return nil, ErrInstallmentsNotAllowed
		}
		installmentPlan = PlanInstallments(&plan, requestedInstallments)
	}

	reference, err := helpers.NewTicketReference()
	if err != nil {
		return nil, err
	}

	ticket := &models.Ticket{
		Reference:       reference,
		UserID:          buyerID,
		EventID:         eventID,
		PlanID:          planID,
		TotalAmountSats: plan.PriceSats,
		Status:          models.TicketReserved,
		InstallmentPlan: installmentPlan,
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed := tx.Model(&models.TicketPlan{}).
			Where("id = ? AND sold < quantity", planID).
			UpdateColumn("sold", gorm.Expr("sold + 1"))
		if claimed.Error != nil {
			return claimed.Error
		}
		if claimed.RowsAffected == 0 {
			return ErrSoldOut
		}
		return tx.Create(ticket).Error
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("ticket reserved",
		zap.String("reference", ticket.Reference),
		zap.String("plan_id", planID.String()),
		zap.String("payment_method", paymentMethod))

	return ticket, nil
}

// RecordPayment credits a confirmed payment amount to the ticket. It is
// only ever invoked by the reconciler, once per distinct confirmed
// payment record; deduplication happens there.
func (l *Ledger) RecordPayment(ctx context.Context, ticketID uuid.UUID, amountSats int64) error {
	return l.RecordPaymentIn(l.db.WithContext(ctx), ticketID, amountSats)
}

// RecordPaymentIn is RecordPayment running on the caller's transaction,
// so the reconciler can flip the payment record and credit the ticket
// atomically.
func (l *Ledger) RecordPaymentIn(tx *gorm.DB, ticketID uuid.UUID, amountSats int64) error {
	if amountSats <= 0 {
		return ErrInvalidAmount
	}

	for attempt := 0; attempt < updateAttempts; attempt++ {
		var ticket models.Ticket
		if err := tx.First(&ticket, "id = ?", ticketID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTicketNotFound
			}
			return err
		}

		newPaid := ticket.AmountPaidSats + amountSats
		if newPaid > ticket.TotalAmountSats {
			l.log.Warn("overpayment clamped",
				zap.String("ticket_id", ticketID.String()),
				zap.Int64("amount_sats", amountSats),
				zap.Int64("excess_sats", newPaid-ticket.TotalAmountSats))
			newPaid = ticket.TotalAmountSats
		}

		updates := map[string]any{
			"amount_paid_sats": newPaid,
			"status":           statusAfterPayment(&ticket, newPaid),
		}
		if plan := ticket.InstallmentPlan; plan != nil && newPaid < ticket.TotalAmountSats {
			plan.PaymentsMade++
			if plan.PaymentsMade < plan.TotalInstallments {
				plan.NextPaymentDue = time.Now().Add(installmentInterval)
			}
			// Map-value updates bypass gorm's json serializer, so the
			// plan is marshalled here.
			encoded, err := json.Marshal(plan)
			if err != nil {
				return err
			}
			updates["installment_plan"] = string(encoded)
		}

		// Conditioned on the sum being unchanged since the read: a
		// concurrent confirmation makes this a no-op and we retry on a
		// fresh read instead of losing its increment.
		res := tx.Model(&models.Ticket{}).
			Where("id = ? AND amount_paid_sats = ?", ticketID, ticket.AmountPaidSats).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			l.log.Info("payment recorded",
				zap.String("ticket_id", ticketID.String()),
				zap.Int64("amount_sats", amountSats),
				zap.Int64("amount_paid_sats", newPaid))
			return nil
		}
	}

	return fmt.Errorf("%w: ticket %s", ErrConflict, ticketID)
}

func statusAfterPayment(ticket *models.Ticket, newPaid int64) string {
	// Used and cancelled are terminal; a late confirmation still
	// credits the sums but never resurrects the ticket.
	switch ticket.Status {
	case models.TicketUsed, models.TicketCancelled:
		return ticket.Status
	}
	status := StatusFor(newPaid, ticket.TotalAmountSats)
	if status == models.TicketReserved {
		return ticket.Status
	}
	return status
}

// ValidationResult is what the gate caller receives.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Reason string         `json:"reason,omitempty"`
	Ticket *models.Ticket `json:"-"`
}

// ValidateAndConsume verifies a presented ticket at the gate and, when
// everything checks out, transitions it to used. The transition is
// guarded so a second concurrent scan observes already-used instead of
// succeeding twice. Signature failures never mutate state.
func (l *Ledger) ValidateAndConsume(ctx context.Context, reference string, operatorID uuid.UUID, payload *signing.Payload) (*ValidationResult, error) {
	var ticket models.Ticket
	err := l.db.WithContext(ctx).
		Preload("Event").Preload("User").
		First(&ticket, "reference = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}

	if ticket.Event.UserID != operatorID {
		return nil, ErrNotAuthorized
	}

	if ticket.Status != models.TicketPaid {
		if ticket.Status == models.TicketUsed {
			return &ValidationResult{Valid: false, Reason: "already used"}, ErrAlreadyUsed
		}
		return &ValidationResult{Valid: false, Reason: ticket.Status}, fmt.Errorf("%w: status %s", ErrNotPaid, ticket.Status)
	}

	if payload == nil || payload.TicketID != ticket.ID {
		return &ValidationResult{Valid: false, Reason: "invalid signature"}, signing.ErrSignatureInvalid
	}
	if err := l.verifier.Verify(ctx, payload); err != nil {
		// Only a definitive verification failure means a forged
		// ticket; an infrastructure error must not read as one.
		if !errors.Is(err, signing.ErrSignatureInvalid) && !errors.Is(err, signing.ErrSaltNotFound) {
			return nil, err
		}
		l.log.Warn("ticket payload rejected",
			zap.String("reference", reference),
			zap.Error(err))
		return &ValidationResult{Valid: false, Reason: "invalid signature"}, err
	}

	now := time.Now()
	res := l.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticket.ID, models.TicketPaid).
		Updates(map[string]any{"status": models.TicketUsed, "used_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return &ValidationResult{Valid: false, Reason: "already used"}, ErrAlreadyUsed
	}

	ticket.Status = models.TicketUsed
	ticket.UsedAt = &now

	l.log.Info("ticket consumed",
		zap.String("reference", reference),
		zap.String("operator_id", operatorID.String()))

	return &ValidationResult{Valid: true, Ticket: &ticket}, nil
}

// FindByReference looks a ticket up without mutating it.
func (l *Ledger) FindByReference(ctx context.Context, reference string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := l.db.WithContext(ctx).
		Preload("Event").Preload("User").Preload("Plan").
		First(&ticket, "reference = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}
