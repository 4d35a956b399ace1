package handlers_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/eventpay/eventpay/internal/handlers"
	"github.com/eventpay/eventpay/internal/middleware"
	"github.com/eventpay/eventpay/internal/models"
	"github.com/eventpay/eventpay/internal/reconcile"
	"github.com/eventpay/eventpay/internal/signing"
	"github.com/eventpay/eventpay/internal/ticketing"
)

const webhookSecret = "test-webhook-secret"

type webhookFixture struct {
	db     *gorm.DB
	router *gin.Engine
	ticket *models.Ticket
}

func setupWebhook(t *testing.T) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:webhook_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	reconciler := reconcile.NewReconciler(db, zap.NewNop(), ledger)

	owner := &models.User{Name: "owner", Email: uuid.NewString() + "@example.com", Password: "x"}
	require.NoError(t, db.Create(owner).Error)
	buyer := &models.User{Name: "buyer", Email: uuid.NewString() + "@example.com", Password: "x"}
	require.NoError(t, db.Create(buyer).Error)

	event := &models.Event{Name: "Conf", Date: time.Now().Add(48 * time.Hour), Location: "Lagos", UserID: owner.ID}
	require.NoError(t, db.Create(event).Error)
	plan := &models.TicketPlan{EventID: event.ID, Label: "standard", PriceSats: 9000, Quantity: 10}
	require.NoError(t, db.Create(plan).Error)

	ticket, err := ledger.Reserve(context.Background(), event.ID, plan.ID, buyer.ID, ticketing.PaymentMethodFull, 0)
	require.NoError(t, err)

	router := gin.New()
	webhooks := router.Group("/v1/webhooks", middleware.WebhookAuthMiddleware(webhookSecret))
	webhooks.POST("/lnbits", handlers.NewWebhookHandler(zap.NewNop(), reconciler).HandleLNbits)

	return &webhookFixture{db: db, router: router, ticket: ticket}
}

func (f *webhookFixture) post(t *testing.T, token string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/lnbits", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Webhook-Token", token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsMissingToken(t *testing.T) {
	f := setupWebhook(t)

	w := f.post(t, "", map[string]any{"payment_hash": "hash-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRejectsWrongToken(t *testing.T) {
	f := setupWebhook(t)

	w := f.post(t, "wrong", map[string]any{"payment_hash": "hash-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookRequiresPaymentHash(t *testing.T) {
	f := setupWebhook(t)

	w := f.post(t, webhookSecret, map[string]any{"amount": 3000})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookAppliesConfirmation(t *testing.T) {
	f := setupWebhook(t)

	record := &models.PaymentRecord{
		TicketID:    &f.ticket.ID,
		PaymentHash: "hash-1",
		AmountSats:  9000,
		Status:      models.PaymentPending,
	}
	require.NoError(t, f.db.Create(record).Error)

	w := f.post(t, webhookSecret, map[string]any{"payment_hash": "hash-1", "amount": 9000})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "applied", resp["status"])

	var stored models.Ticket
	require.NoError(t, f.db.First(&stored, "id = ?", f.ticket.ID).Error)
	assert.Equal(t, int64(9000), stored.AmountPaidSats)
	assert.Equal(t, models.TicketPaid, stored.Status)

	// A retried delivery is acknowledged but not re-applied.
	w = f.post(t, webhookSecret, map[string]any{"payment_hash": "hash-1", "amount": 9000})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "already_processed", resp["status"])

	require.NoError(t, f.db.First(&stored, "id = ?", f.ticket.ID).Error)
	assert.Equal(t, int64(9000), stored.AmountPaidSats)
}

func TestWebhookRecordsUnmatchedConfirmation(t *testing.T) {
	f := setupWebhook(t)

	w := f.post(t, webhookSecret, map[string]any{"payment_hash": "mystery", "amount": 500, "memo": "zap"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "recorded_unmatched", resp["status"])

	var record models.PaymentRecord
	require.NoError(t, f.db.First(&record, "payment_hash = ?", "mystery").Error)
	assert.Equal(t, models.PaymentConfirmed, record.Status)
	assert.Nil(t, record.TicketID)
}
