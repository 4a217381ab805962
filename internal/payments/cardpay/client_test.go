package cardpay_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/visagelab/visagebot/internal/payments"
	"github.com/visagelab/visagebot/internal/payments/cardpay"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want payments.Status
	}{
		{"succeeded", payments.StatusPaid},
		{"Succeeded", payments.StatusPaid},
		{"pending", payments.StatusPending},
		{"waiting_for_capture", payments.StatusPending},
		{"canceled", payments.StatusCanceled},
		{"", payments.StatusError},
		{"refunded", payments.StatusError},
	}
	for _, tt := range tests {
		if got := cardpay.NormalizeStatus(tt.raw); got != tt.want {
			t.Errorf("NormalizeStatus(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestCreateInvoiceRequiresCredentials(t *testing.T) {
	client := cardpay.NewClient("", "", "", time.Second, slog.Default())
	_, err := client.CreateInvoice(context.Background(), payments.CreateInvoiceRequest{
		UserID:      1,
		PackageCode: "basic",
		Currency:    "USD",
		AmountMinor: 500,
	})
	if err == nil {
		t.Fatal("invoice created without credentials")
	}
}
