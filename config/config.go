package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/eventpay/eventpay/internal/models"
	"github.com/eventpay/eventpay/internal/signing"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
}

func LoadConfig() (*Config, error) {
	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
	}, nil
}

type LightningConfig struct {
	NodeURL       string
	InvoiceKey    string
	AdminKey      string
	WebhookSecret string
}

func LoadLightningConfig() (*LightningConfig, error) {
	cfg := &LightningConfig{
		NodeURL:       os.Getenv("LNBITS_URL"),
		InvoiceKey:    os.Getenv("LNBITS_API_KEY"),
		AdminKey:      os.Getenv("LNBITS_ADMIN_KEY"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	}
	if cfg.NodeURL == "" || cfg.InvoiceKey == "" {
		return nil, errors.New("LNBITS_URL and LNBITS_API_KEY must be configured")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("WEBHOOK_SECRET must be configured")
	}
	return cfg, nil
}

// LoadSigningKey reads the process-wide ticket signing key, either
// inline PEM in TICKET_SIGNING_KEY or a path in TICKET_SIGNING_KEY_FILE.
// A missing key is a startup error: generating one on the fly would
// invalidate every ticket issued before the restart.
func LoadSigningKey() (*ecdsa.PrivateKey, error) {
	pemData := []byte(os.Getenv("TICKET_SIGNING_KEY"))
	if len(pemData) == 0 {
		path := os.Getenv("TICKET_SIGNING_KEY_FILE")
		if path == "" {
			return nil, errors.New("TICKET_SIGNING_KEY or TICKET_SIGNING_KEY_FILE must be configured")
		}
		var err error
		pemData, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading signing key file: %w", err)
		}
	}
	return signing.ParsePrivateKey(pemData)
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := enableUUIDExtension(db); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&models.Role{}, &models.User{}, &models.Event{}, &models.TicketPlan{}, &models.Ticket{}, &models.PaymentRecord{})
	if err != nil {
		return nil, err
	}

	seedRoles(db)

	return db, nil
}

func seedRoles(db *gorm.DB) {
	roles := []models.Role{
		{Name: "organizer"},
		{Name: "attendee"},
	}

	for _, role := range roles {
		var existingRole models.Role
		result := db.Where("name = ?", role.Name).First(&existingRole)
		if result.Error != nil {
			db.Create(&role)
		}
	}
}
