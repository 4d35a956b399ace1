package ticketing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eventpay/eventpay/internal/models"
	"github.com/eventpay/eventpay/internal/ticketing"
)

func TestPlanInstallments(t *testing.T) {
	tests := []struct {
		name       string
		price      int64
		maxAllowed int
		requested  int
		wantCount  int
		wantAmount int64
	}{
		{"even split over three", 9000, 3, 3, 3, 3000},
		{"uneven split rounds up", 10000, 3, 3, 3, 3334},
		{"plan caps below three", 9000, 2, 3, 2, 4500},
		{"buyer requests fewer", 9000, 3, 2, 2, 4500},
		{"absurd plan max still capped", 9000, 12, 0, 3, 3000},
		{"zero requested uses plan max", 8000, 2, 0, 2, 4000},
		{"price caps installment count", 2, 3, 3, 2, 1},
		{"one sat price single installment", 1, 3, 3, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &models.TicketPlan{PriceSats: tt.price, MaxInstallments: tt.maxAllowed}
			got := ticketing.PlanInstallments(plan, tt.requested)

			assert.Equal(t, tt.wantCount, got.TotalInstallments)
			assert.Equal(t, tt.wantAmount, got.InstallmentAmount)
			assert.Equal(t, 0, got.PaymentsMade)
			assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), got.NextPaymentDue, time.Minute)
		})
	}
}

func TestPlanInstallmentsCoversPrice(t *testing.T) {
	for _, price := range []int64{1, 999, 1000, 9999, 10001, 123457} {
		plan := &models.TicketPlan{PriceSats: price, MaxInstallments: 3}
		got := ticketing.PlanInstallments(plan, 3)
		total := got.InstallmentAmount * int64(got.TotalInstallments)
		assert.GreaterOrEqual(t, total, price, "price %d", price)
		assert.Less(t, total-price, got.InstallmentAmount, "price %d", price)
	}
}

func TestValidateInstallmentAmount(t *testing.T) {
	plan := &models.TicketPlan{PriceSats: 9000, MinInstallmentAmount: 1000}
	installments := &models.InstallmentPlan{TotalInstallments: 3, InstallmentAmount: 3000}

	ticket := func(paid int64) *models.Ticket {
		return &models.Ticket{TotalAmountSats: 9000, AmountPaidSats: paid, InstallmentPlan: installments}
	}

	t.Run("requested at installment amount", func(t *testing.T) {
		got, err := ticketing.ValidateInstallmentAmount(ticket(0), plan, 3000)
		assert.NoError(t, err)
		assert.Equal(t, int64(3000), got)
	})

	t.Run("requested above installment amount is clamped", func(t *testing.T) {
		got, err := ticketing.ValidateInstallmentAmount(ticket(0), plan, 5000)
		assert.NoError(t, err)
		assert.Equal(t, int64(3000), got)
	})

	t.Run("clamped to remaining balance", func(t *testing.T) {
		got, err := ticketing.ValidateInstallmentAmount(ticket(7500), plan, 3000)
		assert.NoError(t, err)
		assert.Equal(t, int64(1500), got)
	})

	t.Run("below plan minimum", func(t *testing.T) {
		_, err := ticketing.ValidateInstallmentAmount(ticket(0), plan, 500)
		assert.ErrorIs(t, err, ticketing.ErrBelowMinimum)
	})

	t.Run("remainder below minimum still fails", func(t *testing.T) {
		_, err := ticketing.ValidateInstallmentAmount(ticket(8500), plan, 3000)
		assert.ErrorIs(t, err, ticketing.ErrBelowMinimum)
	})

	t.Run("zero amount", func(t *testing.T) {
		_, err := ticketing.ValidateInstallmentAmount(ticket(0), plan, 0)
		assert.ErrorIs(t, err, ticketing.ErrInvalidAmount)
	})

	t.Run("already settled", func(t *testing.T) {
		_, err := ticketing.ValidateInstallmentAmount(ticket(9000), plan, 1000)
		assert.ErrorIs(t, err, ticketing.ErrAlreadyPaid)
	})

	t.Run("full payment has no installment clamp", func(t *testing.T) {
		full := &models.Ticket{TotalAmountSats: 9000}
		got, err := ticketing.ValidateInstallmentAmount(full, plan, 9000)
		assert.NoError(t, err)
		assert.Equal(t, int64(9000), got)
	})

	t.Run("default minimum applies when plan has none", func(t *testing.T) {
		bare := &models.TicketPlan{PriceSats: 9000}
		_, err := ticketing.ValidateInstallmentAmount(ticket(0), bare, 900)
		assert.ErrorIs(t, err, ticketing.ErrBelowMinimum)
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, models.TicketReserved, ticketing.StatusFor(0, 9000))
	assert.Equal(t, models.TicketPartial, ticketing.StatusFor(1, 9000))
	assert.Equal(t, models.TicketPartial, ticketing.StatusFor(8999, 9000))
	assert.Equal(t, models.TicketPaid, ticketing.StatusFor(9000, 9000))
	assert.Equal(t, models.TicketPaid, ticketing.StatusFor(9001, 9000))
}
