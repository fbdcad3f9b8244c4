// Package gateway talks to a Razorpay-compatible payment gateway: order
// creation over REST and HMAC-SHA256 signature checks.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
)

const peer = "gateway"

type Config struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	metrics *metrics.Metrics
}

func New(cfg Config, m *metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if m == nil {
		m = metrics.Nop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, metrics: m}
}

func (c *Client) PublishableKey() string { return c.cfg.KeyID }

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

type createOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error,omitempty"`
}

// CreateOrder opens a gateway order for amountMinor (paise, cents) and
// returns its id.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (_ string, err error) {
	start := time.Now()
	defer func() { c.metrics.External(peer, "create_order", start, err) }()

	body, err := json.Marshal(createOrderRequest{
		Amount: amountMinor, Currency: currency, Receipt: receipt, PaymentCapture: 1,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gateway: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: create order: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gateway: read response: %w", err)
	}
	var out createOrderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("gateway: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		if out.Error != nil {
			return "", fmt.Errorf("gateway: create order: status %d: %s: %s", resp.StatusCode, out.Error.Code, out.Error.Description)
		}
		return "", fmt.Errorf("gateway: create order: status %d", resp.StatusCode)
	}
	if out.ID == "" {
		return "", fmt.Errorf("gateway: create order: empty order id")
	}
	return out.ID, nil
}

// VerifySignature checks hex(HMAC-SHA256(key secret, order_id|payment_id)).
func (c *Client) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) error {
	return verify(c.cfg.KeySecret, []byte(gatewayOrderID+"|"+gatewayPaymentID), signature)
}

// SignPayment mints the checkout signature for a payment the gateway
// reported through a verified webhook.
func (c *Client) SignPayment(gatewayOrderID, gatewayPaymentID string) string {
	return Sign(c.cfg.KeySecret, []byte(gatewayOrderID+"|"+gatewayPaymentID))
}

// VerifyWebhook checks a webhook body against its X-Razorpay-Signature header.
func (c *Client) VerifyWebhook(body []byte, signature string) error {
	if c.cfg.WebhookSecret == "" {
		return apperr.New(apperr.KindSignatureInvalid, "webhook secret not configured")
	}
	return verify(c.cfg.WebhookSecret, body, signature)
}

// Sign is the counterpart of VerifySignature, used by tests and local tooling.
func Sign(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret string, msg []byte, signature string) error {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha256.Size {
		return apperr.New(apperr.KindSignatureInvalid, "signature verification failed")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	if !hmac.Equal(mac.Sum(nil), got) {
		return apperr.New(apperr.KindSignatureInvalid, "signature verification failed")
	}
	return nil
}
