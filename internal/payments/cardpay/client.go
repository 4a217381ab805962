// Package cardpay is the card payment rail, a YooKassa-shaped HTTP API using
// basic auth plus an Idempotence-Key header on creation.
package cardpay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/visagelab/visagebot/internal/payments"
)

const providerName = "cardpay"

type Client struct {
	shopID     string
	secretKey  string
	returnURL  string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(shopID, secretKey, returnURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if returnURL == "" {
		returnURL = "https://t.me"
	}
	return &Client{
		shopID:     shopID,
		secretKey:  secretKey,
		returnURL:  returnURL,
		baseURL:    "https://api.yookassa.ru/v3",
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (c *Client) Name() string { return providerName }

type paymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Description  string `json:"description"`
	Confirmation struct {
		Type string `json:"type"`
		URL  string `json:"confirmation_url"`
	} `json:"confirmation"`
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Metadata struct {
		UserID      int64  `json:"user_id,string"`
		PackageCode string `json:"package_code"`
	} `json:"metadata"`
}

func (c *Client) CreateInvoice(ctx context.Context, req payments.CreateInvoiceRequest) (*payments.Invoice, error) {
	if c.shopID == "" || c.secretKey == "" {
		return nil, fmt.Errorf("cardpay credentials are not configured")
	}

	payload := map[string]any{
		"amount": map[string]string{
			"value":    fmt.Sprintf("%.2f", float64(req.AmountMinor)/100),
			"currency": req.Currency,
		},
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": c.returnURL,
		},
		"capture":     true,
		"description": req.Description,
		"metadata": map[string]string{
			"user_id":      fmt.Sprintf("%d", req.UserID),
			"package_code": req.PackageCode,
		},
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build cardpay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", req.IdempotenceKey)
	httpReq.SetBasicAuth(c.shopID, c.secretKey)

	raw, parsed, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if parsed.ID == "" || parsed.Confirmation.URL == "" {
		return nil, fmt.Errorf("invalid cardpay response (missing id or confirmation url)")
	}

	return &payments.Invoice{
		PaymentID:  parsed.ID,
		PaymentURL: parsed.Confirmation.URL,
		RawPayload: string(raw),
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, paymentID string) (payments.Status, error) {
	parsed, err := c.getPayment(ctx, paymentID)
	if err != nil {
		return payments.StatusError, err
	}
	return NormalizeStatus(parsed.Status), nil
}

func (c *Client) PaymentData(ctx context.Context, paymentID string) (*payments.PaymentData, error) {
	parsed, err := c.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if parsed.Metadata.UserID == 0 || parsed.Metadata.PackageCode == "" {
		return nil, nil
	}
	amount := 0
	if parsed.Amount.Value != "" {
		var major float64
		if _, err := fmt.Sscanf(parsed.Amount.Value, "%f", &major); err == nil {
			amount = int(major*100 + 0.5)
		}
	}
	return &payments.PaymentData{
		UserID:      parsed.Metadata.UserID,
		PackageCode: parsed.Metadata.PackageCode,
		AmountMinor: amount,
		Currency:    parsed.Amount.Currency,
	}, nil
}

// NormalizeStatus maps the provider's status vocabulary onto the shared model.
// The provider cancels rather than expires unpaid payments, so expired is
// never produced here.
func NormalizeStatus(raw string) payments.Status {
	switch strings.ToLower(raw) {
	case "succeeded":
		return payments.StatusPaid
	case "pending", "waiting_for_capture":
		return payments.StatusPending
	case "canceled":
		return payments.StatusCanceled
	default:
		return payments.StatusError
	}
}

func (c *Client) getPayment(ctx context.Context, paymentID string) (*paymentResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+paymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("build cardpay request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	_, parsed, err := c.do(req)
	return parsed, err
}

func (c *Client) do(req *http.Request) ([]byte, *paymentResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("cardpay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error("cardpay request failed", "status", resp.StatusCode, "url", req.URL.Path, "body", truncateBody(raw))
		return nil, nil, fmt.Errorf("cardpay error: status=%d", resp.StatusCode)
	}

	var parsed paymentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode cardpay response: %w (body=%s)", err, truncateBody(raw))
	}
	return raw, &parsed, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
