package reconcile_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/eventpay/eventpay/internal/models"
	"github.com/eventpay/eventpay/internal/reconcile"
	"github.com/eventpay/eventpay/internal/signing"
	"github.com/eventpay/eventpay/internal/ticketing"
)

type fixture struct {
	db         *gorm.DB
	ledger     *ticketing.Ledger
	reconciler *reconcile.Reconciler
	ticket     *models.Ticket
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:reconcile_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{DisableForeignKeyConstraintWhenMigrating: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Role{}, &models.User{}, &models.Event{}, &models.TicketPlan{}, &models.Ticket{}, &models.PaymentRecord{}))

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer := signing.NewSigner(key, ticketing.NewSaltStore(db))
	ledger := ticketing.NewLedger(db, zap.NewNop(), signer)

	buyer := &models.User{Name: "buyer", Email: uuid.NewString() + "@example.com", Password: "x"}
	require.NoError(t, db.Create(buyer).Error)
	owner := &models.User{Name: "owner", Email: uuid.NewString() + "@example.com", Password: "x"}
	require.NoError(t, db.Create(owner).Error)

	event := &models.Event{Name: "Conf", Date: time.Now().Add(48 * time.Hour), Location: "Accra", UserID: owner.ID}
	require.NoError(t, db.Create(event).Error)
	plan := &models.TicketPlan{EventID: event.ID, Label: "standard", PriceSats: 9000, Quantity: 10, InstallmentAllowed: true, MaxInstallments: 3, MinInstallmentAmount: 1000}
	require.NoError(t, db.Create(plan).Error)

	ticket, err := ledger.Reserve(context.Background(), event.ID, plan.ID, buyer.ID, ticketing.PaymentMethodInstallment, 3)
	require.NoError(t, err)

	return &fixture{
		db:         db,
		ledger:     ledger,
		reconciler: reconcile.NewReconciler(db, zap.NewNop(), ledger),
		ticket:     ticket,
	}
}

func (f *fixture) pendingRecord(t *testing.T, hash string, amount int64) *models.PaymentRecord {
	t.Helper()

	record := &models.PaymentRecord{
		TicketID:    &f.ticket.ID,
		PaymentHash: hash,
		AmountSats:  amount,
		Memo:        "Installment for ticket " + f.ticket.Reference,
		Status:      models.PaymentPending,
	}
	require.NoError(t, f.db.Create(record).Error)
	return record
}

func (f *fixture) storedTicket(t *testing.T) *models.Ticket {
	t.Helper()

	var ticket models.Ticket
	require.NoError(t, f.db.First(&ticket, "id = ?", f.ticket.ID).Error)
	return &ticket
}

func TestConfirmationCreditsTicket(t *testing.T) {
	f := setup(t)
	f.pendingRecord(t, "hash-1", 3000)

	result, err := f.reconciler.OnPaymentConfirmed(context.Background(), "hash-1", 3000, "")
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.False(t, result.Unsolicited)
	require.NotNil(t, result.TicketID)
	assert.Equal(t, f.ticket.ID, *result.TicketID)

	stored := f.storedTicket(t)
	assert.Equal(t, int64(3000), stored.AmountPaidSats)
	assert.Equal(t, models.TicketPartial, stored.Status)

	var record models.PaymentRecord
	require.NoError(t, f.db.First(&record, "payment_hash = ?", "hash-1").Error)
	assert.Equal(t, models.PaymentConfirmed, record.Status)
	assert.NotNil(t, record.PaidAt)
}

func TestDuplicateConfirmationAppliedOnce(t *testing.T) {
	f := setup(t)
	f.pendingRecord(t, "hash-1", 3000)

	_, err := f.reconciler.OnPaymentConfirmed(context.Background(), "hash-1", 3000, "")
	require.NoError(t, err)

	// Webhook retries answer with success but must not credit again.
	for i := 0; i < 3; i++ {
		result, err := f.reconciler.OnPaymentConfirmed(context.Background(), "hash-1", 3000, "")
		require.NoError(t, err)
		assert.True(t, result.Duplicate)
	}

	assert.Equal(t, int64(3000), f.storedTicket(t).AmountPaidSats)
}

func TestConfirmationsAccumulateToPaid(t *testing.T) {
	f := setup(t)
	f.pendingRecord(t, "hash-1", 3000)
	f.pendingRecord(t, "hash-2", 3000)
	f.pendingRecord(t, "hash-3", 3000)

	for _, hash := range []string{"hash-2", "hash-1", "hash-3", "hash-2", "hash-1"} {
		_, err := f.reconciler.OnPaymentConfirmed(context.Background(), hash, 3000, "")
		require.NoError(t, err)
	}

	stored := f.storedTicket(t)
	assert.Equal(t, int64(9000), stored.AmountPaidSats)
	assert.Equal(t, models.TicketPaid, stored.Status)
}

func TestUnsolicitedConfirmationRecorded(t *testing.T) {
	f := setup(t)

	result, err := f.reconciler.OnPaymentConfirmed(context.Background(), "mystery-hash", 1234, "tip jar")
	require.NoError(t, err)
	assert.True(t, result.Unsolicited)
	assert.Nil(t, result.TicketID)

	var record models.PaymentRecord
	require.NoError(t, f.db.First(&record, "payment_hash = ?", "mystery-hash").Error)
	assert.Equal(t, models.PaymentConfirmed, record.Status)
	assert.Nil(t, record.TicketID)

	assert.Equal(t, int64(0), f.storedTicket(t).AmountPaidSats)
}

func TestUnsolicitedConfirmationCorrelatedByMemo(t *testing.T) {
	f := setup(t)

	memo := "Installment for ticket " + f.ticket.Reference
	result, err := f.reconciler.OnPaymentConfirmed(context.Background(), "mystery-hash", 3000, memo)
	require.NoError(t, err)
	assert.True(t, result.Unsolicited)
	require.NotNil(t, result.TicketID)
	assert.Equal(t, f.ticket.ID, *result.TicketID)

	assert.Equal(t, int64(3000), f.storedTicket(t).AmountPaidSats)
}

type stubChecker struct {
	paid map[string]int64
	errs map[string]error
}

func (c *stubChecker) CheckPayment(ctx context.Context, hash string) (bool, int64, error) {
	if err, ok := c.errs[hash]; ok {
		return false, 0, err
	}
	amount, ok := c.paid[hash]
	return ok, amount, nil
}

func TestCheckPendingAppliesSettledPayments(t *testing.T) {
	f := setup(t)
	f.pendingRecord(t, "hash-1", 3000)
	f.pendingRecord(t, "hash-2", 3000)
	f.pendingRecord(t, "hash-3", 3000)

	checker := &stubChecker{
		paid: map[string]int64{"hash-1": 3000},
		errs: map[string]error{"hash-3": errors.New("gateway down")},
	}

	applied, err := f.reconciler.CheckPending(context.Background(), checker)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	assert.Equal(t, int64(3000), f.storedTicket(t).AmountPaidSats)

	var pending int64
	require.NoError(t, f.db.Model(&models.PaymentRecord{}).Where("status = ?", models.PaymentPending).Count(&pending).Error)
	assert.Equal(t, int64(2), pending)
}

func TestCheckPendingIsIdempotent(t *testing.T) {
	f := setup(t)
	f.pendingRecord(t, "hash-1", 3000)

	checker := &stubChecker{paid: map[string]int64{"hash-1": 3000}}

	for i := 0; i < 2; i++ {
		_, err := f.reconciler.CheckPending(context.Background(), checker)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(3000), f.storedTicket(t).AmountPaidSats)
}
