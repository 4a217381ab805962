// Package payments defines the narrow contract the bot needs from a payment
// provider, plus the normalized status vocabulary every provider is mapped
// into before the reconciliation engine sees it. Ledger logic never branches
// on provider identity.
package payments

import "context"

// Status is the provider-agnostic payment outcome.
type Status string

const (
	StatusPaid     Status = "paid"
	StatusPending  Status = "pending"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusError    Status = "error"
)

// CreateInvoiceRequest describes one purchase attempt to a provider.
type CreateInvoiceRequest struct {
	UserID         int64
	PackageCode    string
	Currency       string
	AmountMinor    int
	Description    string
	IdempotenceKey string
}

// Invoice is the provider's handle for a created payment.
type Invoice struct {
	PaymentID  string
	PaymentURL string
	RawPayload string
}

// PaymentData is provider-side metadata used to reconstruct a transaction the
// bot has no record of (e.g. lost before the invoice reply was persisted).
type PaymentData struct {
	UserID      int64
	PackageCode string
	AmountMinor int
	Currency    string
}

// Provider is implemented by each payment rail. A payment is always addressed
// by the explicit (provider name, payment id) pair; provider identity is never
// inferred from the shape of the id.
type Provider interface {
	Name() string
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	CheckStatus(ctx context.Context, paymentID string) (Status, error)
	PaymentData(ctx context.Context, paymentID string) (*PaymentData, error)
}

// Registry resolves providers by name.
type Registry map[string]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

func (r Registry) Get(name string) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}
