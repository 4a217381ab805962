// Package cryptoinv is the crypto-invoice payment rail, a Cryptomus-shaped
// HTTP API. Requests are signed with an MD5-of-base64-body signature in the
// "sign" header, which is how the provider authenticates merchants.
package cryptoinv

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/visagelab/visagebot/internal/payments"
)

const providerName = "cryptoinv"

type Client struct {
	merchantID string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(merchantID, apiKey, baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		merchantID: merchantID,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (c *Client) Name() string { return providerName }

type invoiceAdditional struct {
	UserID      int64  `json:"user_id"`
	PackageCode string `json:"package_code"`
}

type invoiceResponse struct {
	State  int `json:"state"`
	Result struct {
		UUID           string `json:"uuid"`
		OrderID        string `json:"order_id"`
		Amount         string `json:"amount"`
		Currency       string `json:"currency"`
		URL            string `json:"url"`
		PaymentStatus  string `json:"payment_status"`
		AdditionalData string `json:"additional_data"`
	} `json:"result"`
	Message string `json:"message"`
}

func (c *Client) CreateInvoice(ctx context.Context, req payments.CreateInvoiceRequest) (*payments.Invoice, error) {
	additional, _ := json.Marshal(invoiceAdditional{
		UserID:      req.UserID,
		PackageCode: req.PackageCode,
	})

	payload := map[string]any{
		"amount":          fmt.Sprintf("%.2f", float64(req.AmountMinor)/100),
		"currency":        req.Currency,
		"order_id":        req.IdempotenceKey,
		"additional_data": string(additional),
		"lifetime":        3600,
	}

	raw, parsed, err := c.post(ctx, "/v1/payment", payload)
	if err != nil {
		return nil, err
	}
	if parsed.Result.UUID == "" || parsed.Result.URL == "" {
		return nil, fmt.Errorf("invalid invoice response (missing uuid or url): %s", parsed.Message)
	}

	return &payments.Invoice{
		PaymentID:  parsed.Result.UUID,
		PaymentURL: parsed.Result.URL,
		RawPayload: string(raw),
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, paymentID string) (payments.Status, error) {
	_, parsed, err := c.post(ctx, "/v1/payment/info", map[string]any{"uuid": paymentID})
	if err != nil {
		return payments.StatusError, err
	}
	return NormalizeStatus(parsed.Result.PaymentStatus), nil
}

func (c *Client) PaymentData(ctx context.Context, paymentID string) (*payments.PaymentData, error) {
	_, parsed, err := c.post(ctx, "/v1/payment/info", map[string]any{"uuid": paymentID})
	if err != nil {
		return nil, err
	}
	if parsed.Result.AdditionalData == "" {
		return nil, nil
	}
	var additional invoiceAdditional
	if err := json.Unmarshal([]byte(parsed.Result.AdditionalData), &additional); err != nil {
		return nil, fmt.Errorf("parse additional data: %w", err)
	}
	if additional.UserID == 0 || additional.PackageCode == "" {
		return nil, nil
	}
	amount := 0
	if parsed.Result.Amount != "" {
		var major float64
		if _, err := fmt.Sscanf(parsed.Result.Amount, "%f", &major); err == nil {
			amount = int(major*100 + 0.5)
		}
	}
	return &payments.PaymentData{
		UserID:      additional.UserID,
		PackageCode: additional.PackageCode,
		AmountMinor: amount,
		Currency:    parsed.Result.Currency,
	}, nil
}

// NormalizeStatus maps the provider's status vocabulary onto the shared model.
func NormalizeStatus(raw string) payments.Status {
	switch strings.ToLower(raw) {
	case "paid", "paid_over":
		return payments.StatusPaid
	case "check", "process", "confirm_check", "confirming":
		return payments.StatusPending
	case "cancel", "fail", "wrong_amount", "system_fail":
		return payments.StatusCanceled
	case "expired":
		return payments.StatusExpired
	default:
		return payments.StatusError
	}
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) ([]byte, *invoiceResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("merchant", c.merchantID)
	req.Header.Set("sign", c.sign(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("cryptoinv request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error("cryptoinv request failed", "status", resp.StatusCode, "path", path, "body", truncateBody(raw))
		return nil, nil, fmt.Errorf("cryptoinv error: status=%d path=%s", resp.StatusCode, path)
	}

	var parsed invoiceResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(raw))
	}
	return raw, &parsed, nil
}

func (c *Client) sign(body []byte) string {
	encoded := base64.StdEncoding.EncodeToString(body)
	sum := md5.Sum([]byte(encoded + c.apiKey))
	return hex.EncodeToString(sum[:])
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
