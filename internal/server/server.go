package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eventpay/eventpay/config"
	"github.com/eventpay/eventpay/internal/handlers"
	"github.com/eventpay/eventpay/internal/lightning"
	"github.com/eventpay/eventpay/internal/middleware"
	"github.com/eventpay/eventpay/internal/reconcile"
	"github.com/eventpay/eventpay/internal/signing"
	"github.com/eventpay/eventpay/internal/ticketing"
)

func Start() error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %v", err)
	}
	defer log.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	lnCfg, err := config.LoadLightningConfig()
	if err != nil {
		return fmt.Errorf("failed to load lightning config: %v", err)
	}

	signingKey, err := config.LoadSigningKey()
	if err != nil {
		return fmt.Errorf("failed to load signing key: %v", err)
	}

	lnClient := lightning.NewClient(lnCfg.NodeURL, lnCfg.InvoiceKey, lnCfg.AdminKey, log)
	signer := signing.NewSigner(signingKey, ticketing.NewSaltStore(db))
	ledger := ticketing.NewLedger(db, log, signer)
	reconciler := reconcile.NewReconciler(db, log, ledger)

	r := gin.Default()

	setupRoutes(r, db, log, lnCfg.WebhookSecret, lnClient, ledger, signer, reconciler)

	go sweepPendingPayments(log, reconciler, lnClient)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return r.Run(":" + port)
}

func setupRoutes(r *gin.Engine, db *gorm.DB, log *zap.Logger, webhookSecret string, lnClient *lightning.Client, ledger *ticketing.Ledger, signer *signing.Signer, reconciler *reconcile.Reconciler) {
	r.Use(middleware.DatabaseMiddleware(db))
	r.Use(middleware.LightningMiddleware(lnClient))

	ticketHandler := handlers.NewTicketHandler(db, log, ledger, signer, lnClient)
	validationHandler := handlers.NewValidationHandler(log, ledger)
	webhookHandler := handlers.NewWebhookHandler(log, reconciler)
	lightningHandler := handlers.NewLightningHandler(log, reconciler)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC()})
	})

	public := r.Group("/v1")
	{
		public.POST("/register", handlers.Register)
		public.POST("/login", handlers.Login)

		eventPublic := public.Group("/events")
		{
			eventPublic.GET("", handlers.ListEvents)
			eventPublic.GET("/:id", handlers.GetEvent)
			eventPublic.GET("/:id/plans", handlers.ListEventPlans)
		}
	}

	webhooks := r.Group("/v1/webhooks")
	webhooks.Use(middleware.WebhookAuthMiddleware(webhookSecret))
	{
		webhooks.POST("/lnbits", webhookHandler.HandleLNbits)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		eventProtected := protected.Group("/events")
		{
			eventProtected.POST("", handlers.CreateEvent)
			eventProtected.POST("/:id/plans", handlers.CreatePlan)
		}

		organizer := protected.Group("/organizer")
		{
			organizer.GET("/events", handlers.ListOrganizerEvents)
			organizer.GET("/events/:id/stats", handlers.OrganizerEventStats)
		}

		tickets := protected.Group("/tickets")
		{
			tickets.POST("", ticketHandler.Reserve)
			tickets.GET("/my", ticketHandler.MyTickets)
			tickets.POST("/:id/invoices", ticketHandler.CreateInvoice)
			tickets.GET("/:id/qr", ticketHandler.TicketQR)
			tickets.POST("/validate", validationHandler.Validate)
		}

		ln := protected.Group("/lightning")
		{
			ln.GET("/balance", lightningHandler.Balance)
			ln.POST("/invoices", lightningHandler.CreateInvoice)
			ln.GET("/payments", lightningHandler.PaymentHistory)
			ln.GET("/payments/:hash", lightningHandler.CheckPayment)
			ln.POST("/invoices/pay", lightningHandler.PayInvoice)
			ln.POST("/invoices/decode", lightningHandler.DecodeInvoice)
			ln.POST("/wallets", lightningHandler.CreateWallet)
		}
	}
}

// sweepPendingPayments periodically replays pending invoices against
// the gateway, catching confirmations whose webhook delivery was lost.
func sweepPendingPayments(log *zap.Logger, reconciler *reconcile.Reconciler, lnClient *lightning.Client) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		applied, err := reconciler.CheckPending(context.Background(), lnClient)
		if err != nil {
			log.Error("pending payment sweep failed", zap.Error(err))
			continue
		}
		if applied > 0 {
			log.Info("pending payment sweep applied confirmations", zap.Int("applied", applied))
		}
	}
}
