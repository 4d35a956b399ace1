package lightning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrUpstreamUnavailable wraps every gateway transport or server
// failure. Callers treat it as retryable and never as a confirmed
// payment.
var ErrUpstreamUnavailable = errors.New("lightning: gateway unavailable")

type Invoice struct {
	PaymentRequest string `json:"payment_request"`
	PaymentHash    string `json:"payment_hash"`
	CheckingID     string `json:"checking_id"`
}

type Wallet struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

type Payment struct {
	PaymentHash string `json:"payment_hash"`
	Bolt11      string `json:"bolt11"`
	Amount      int64  `json:"amount"`
	Memo        string `json:"memo"`
	Pending     bool   `json:"pending"`
	Time        int64  `json:"time"`
}

// Client talks to an LNbits node. Invoice-key operations mint and check
// invoices; admin-key operations move funds and create wallets.
type Client struct {
	http       *resty.Client
	invoiceKey string
	adminKey   string
	breaker    *breaker
	log        *zap.Logger
}

func NewClient(baseURL, invoiceKey, adminKey string, log *zap.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second).
			SetHeader("Content-Type", "application/json"),
		invoiceKey: invoiceKey,
		adminKey:   adminKey,
		breaker:    newBreaker(5, 30*time.Second),
		log:        log,
	}
}

func (c *Client) do(ctx context.Context, apiKey string, build func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	if err := c.breaker.allow(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	resp, err := build(c.http.R().SetContext(ctx).SetHeader("X-Api-Key", apiKey))
	if err != nil {
		c.breaker.record(err)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if resp.IsError() {
		httpErr := fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
		c.breaker.record(httpErr)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, httpErr)
	}

	c.breaker.record(nil)
	return resp, nil
}

// CreateInvoice mints an incoming invoice for amountSats. The memo is
// echoed back by the gateway's webhook and doubles as the correlation
// token for unsolicited confirmations.
func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string, expirySeconds int) (*Invoice, error) {
	if expirySeconds <= 0 {
		expirySeconds = 3600
	}

	var invoice Invoice
	_, err := c.do(ctx, c.invoiceKey, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetBody(map[string]any{
				"out":    false,
				"amount": amountSats,
				"memo":   memo,
				"expiry": expirySeconds,
			}).
			SetResult(&invoice).
			Post("/api/v1/payments")
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("invoice created",
		zap.String("payment_hash", invoice.PaymentHash),
		zap.Int64("amount_sats", amountSats))

	return &invoice, nil
}

type paymentStatus struct {
	Paid     bool   `json:"paid"`
	Preimage string `json:"preimage"`
	Details  struct {
		Amount int64  `json:"amount"`
		Memo   string `json:"memo"`
	} `json:"details"`
}

// CheckPayment reports whether the invoice behind paymentHash settled,
// and for how many sats. LNbits reports amounts in millisats.
func (c *Client) CheckPayment(ctx context.Context, paymentHash string) (bool, int64, error) {
	var status paymentStatus
	_, err := c.do(ctx, c.invoiceKey, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&status).Get("/api/v1/payments/" + paymentHash)
	})
	if err != nil {
		return false, 0, err
	}

	return status.Paid, status.Details.Amount / 1000, nil
}

func (c *Client) WalletBalance(ctx context.Context) (*Wallet, error) {
	var wallet Wallet
	_, err := c.do(ctx, c.invoiceKey, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&wallet).Get("/api/v1/wallet")
	})
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (c *Client) PayInvoice(ctx context.Context, bolt11 string) (*Invoice, error) {
	var payment Invoice
	_, err := c.do(ctx, c.adminKey, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetBody(map[string]any{"out": true, "bolt11": bolt11}).
			SetResult(&payment).
			Post("/api/v1/payments")
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) DecodeInvoice(ctx context.Context, bolt11 string) (map[string]any, error) {
	var decoded map[string]any
	_, err := c.do(ctx, c.invoiceKey, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetBody(map[string]any{"data": bolt11}).
			SetResult(&decoded).
			Post("/api/v1/payments/decode")
	})
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

func (c *Client) Payments(ctx context.Context, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 50
	}

	var payments []Payment
	_, err := c.do(ctx, c.invoiceKey, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetQueryParam("limit", fmt.Sprintf("%d", limit)).
			SetResult(&payments).
			Get("/api/v1/payments")
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (c *Client) CreateWallet(ctx context.Context, name string) (*Wallet, error) {
	var wallet Wallet
	_, err := c.do(ctx, c.adminKey, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetBody(map[string]any{"name": name}).
			SetResult(&wallet).
			Post("/api/v1/wallet")
	})
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}
