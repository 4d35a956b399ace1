package ticketing

import (
	"time"

	"github.com/eventpay/eventpay/internal/models"
)

const (
	maxInstallmentsCap        = 3
	installmentInterval       = 7 * 24 * time.Hour
	defaultMinInstallmentSats = 1000
)

// PlanInstallments computes the installment schedule for a ticket bound
// to plan. The schedule is capped at three installments regardless of
// what the plan or the buyer asks for.
func PlanInstallments(plan *models.TicketPlan, requested int) *models.InstallmentPlan {
	installments := maxInstallmentsCap
	if plan.MaxInstallments > 0 && plan.MaxInstallments < installments {
		installments = plan.MaxInstallments
	}
	if requested > 0 && requested < installments {
		installments = requested
	}
	// A price below the installment count would round every
	// installment up to 1 sat and overshoot; one sat per installment
	// is the floor.
	if plan.PriceSats > 0 && int64(installments) > plan.PriceSats {
		installments = int(plan.PriceSats)
	}

	amount := (plan.PriceSats + int64(installments) - 1) / int64(installments)

	return &models.InstallmentPlan{
		TotalInstallments: installments,
		InstallmentAmount: amount,
		PaymentsMade:      0,
		NextPaymentDue:    time.Now().Add(installmentInterval),
	}
}

// ValidateInstallmentAmount clamps a requested partial payment to the
// per-installment amount and the remaining balance, which is always
// recomputed from the ticket's current sums. Returns the amount an
// invoice may be minted for.
func ValidateInstallmentAmount(ticket *models.Ticket, plan *models.TicketPlan, requested int64) (int64, error) {
	if requested <= 0 {
		return 0, ErrInvalidAmount
	}

	remaining := ticket.RemainingSats()
	if remaining <= 0 {
		return 0, ErrAlreadyPaid
	}

	amount := requested
	if amount > remaining {
		amount = remaining
	}

	if ticket.InstallmentPlan != nil {
		if amount > ticket.InstallmentPlan.InstallmentAmount {
			amount = ticket.InstallmentPlan.InstallmentAmount
		}

		minAmount := plan.MinInstallmentAmount
		if minAmount <= 0 {
			minAmount = defaultMinInstallmentSats
		}
		if amount < minAmount {
			return 0, ErrBelowMinimum
		}
	}

	return amount, nil
}
