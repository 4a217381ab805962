package cryptoinv_test

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/visagelab/visagebot/internal/payments"
	"github.com/visagelab/visagebot/internal/payments/cryptoinv"
)

func TestCreateInvoiceSignsRequest(t *testing.T) {
	const apiKey = "secret-key"
	var gotMerchant, gotSign string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotMerchant = r.Header.Get("merchant")
		gotSign = r.Header.Get("sign")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state": 0,
			"result": map[string]any{
				"uuid":     "inv-123",
				"order_id": "idem-1",
				"url":      "https://pay.example.com/inv-123",
			},
		})
	}))
	defer server.Close()

	client := cryptoinv.NewClient("m-1", apiKey, server.URL, time.Second, slog.Default())
	invoice, err := client.CreateInvoice(context.Background(), payments.CreateInvoiceRequest{
		UserID:         7,
		PackageCode:    "basic",
		Currency:       "USD",
		AmountMinor:    500,
		IdempotenceKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if invoice.PaymentID != "inv-123" || invoice.PaymentURL != "https://pay.example.com/inv-123" {
		t.Fatalf("invoice = %+v", invoice)
	}

	if gotMerchant != "m-1" {
		t.Errorf("merchant header = %q", gotMerchant)
	}
	sum := md5.Sum([]byte(base64.StdEncoding.EncodeToString(gotBody) + apiKey))
	if want := hex.EncodeToString(sum[:]); gotSign != want {
		t.Errorf("sign header = %q, want %q", gotSign, want)
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if payload["amount"] != "5.00" || payload["order_id"] != "idem-1" {
		t.Errorf("payload = %v", payload)
	}
}

func TestPaymentDataWithoutMetadataIsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state": 0,
			"result": map[string]any{
				"uuid":           "inv-9",
				"payment_status": "paid",
			},
		})
	}))
	defer server.Close()

	client := cryptoinv.NewClient("m-1", "k", server.URL, time.Second, slog.Default())
	data, err := client.PaymentData(context.Background(), "inv-9")
	if err != nil {
		t.Fatalf("payment data: %v", err)
	}
	if data != nil {
		t.Fatalf("data = %+v, want nil when the invoice carries no metadata", data)
	}
}

func TestPaymentDataParsesMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state": 0,
			"result": map[string]any{
				"uuid":            "inv-10",
				"amount":          "20.00",
				"currency":        "USD",
				"payment_status":  "paid",
				"additional_data": `{"user_id":11,"package_code":"standard"}`,
			},
		})
	}))
	defer server.Close()

	client := cryptoinv.NewClient("m-1", "k", server.URL, time.Second, slog.Default())
	data, err := client.PaymentData(context.Background(), "inv-10")
	if err != nil {
		t.Fatalf("payment data: %v", err)
	}
	if data == nil || data.UserID != 11 || data.PackageCode != "standard" || data.AmountMinor != 2000 {
		t.Fatalf("data = %+v", data)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want payments.Status
	}{
		{"paid", payments.StatusPaid},
		{"paid_over", payments.StatusPaid},
		{"PAID", payments.StatusPaid},
		{"check", payments.StatusPending},
		{"process", payments.StatusPending},
		{"confirm_check", payments.StatusPending},
		{"confirming", payments.StatusPending},
		{"cancel", payments.StatusCanceled},
		{"fail", payments.StatusCanceled},
		{"wrong_amount", payments.StatusCanceled},
		{"system_fail", payments.StatusCanceled},
		{"expired", payments.StatusExpired},
		{"", payments.StatusError},
		{"locked", payments.StatusError},
	}
	for _, tt := range tests {
		if got := cryptoinv.NormalizeStatus(tt.raw); got != tt.want {
			t.Errorf("NormalizeStatus(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
