package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/payments"
	"github.com/visagelab/visagebot/internal/repository"
)

// PurchaseService initiates credit purchases: it creates the provider invoice
// and the matching pending transaction. Settlement is the Reconciler's job.
type PurchaseService struct {
	txs       *repository.TransactionRepository
	packages  *PackageService
	providers payments.Registry
}

// PurchaseIntent is what the bot presents to the user after initiation.
type PurchaseIntent struct {
	Provider   string
	PaymentID  string
	PaymentURL string
	Package    models.Package
}

func NewPurchaseService(txs *repository.TransactionRepository, packages *PackageService, providers payments.Registry) *PurchaseService {
	return &PurchaseService{txs: txs, packages: packages, providers: providers}
}

// Initiate creates a provider invoice for the package and records the pending
// transaction keyed by the provider payment id.
func (s *PurchaseService) Initiate(ctx context.Context, user *models.User, packageCode, providerName string) (*PurchaseIntent, error) {
	pkg, err := s.packages.GetByCode(ctx, packageCode)
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	if pkg == nil || !pkg.IsActive {
		return nil, fmt.Errorf("package %q is not available", packageCode)
	}

	provider, ok := s.providers.Get(providerName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	invoice, err := provider.CreateInvoice(ctx, payments.CreateInvoiceRequest{
		UserID:         user.ID,
		PackageCode:    pkg.Code,
		Currency:       pkg.Currency,
		AmountMinor:    pkg.PriceMinorUnits,
		Description:    fmt.Sprintf("%s (%d credits)", pkg.Title, pkg.Credits),
		IdempotenceKey: uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	tx := &models.Transaction{
		UserID:      user.ID,
		Provider:    provider.Name(),
		PaymentID:   invoice.PaymentID,
		PackageCode: pkg.Code,
		Currency:    pkg.Currency,
		Amount:      pkg.PriceMinorUnits,
		Credits:     pkg.Credits,
		Status:      models.TxPending,
		RawPayload:  invoice.RawPayload,
	}
	if err := s.txs.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	return &PurchaseIntent{
		Provider:   provider.Name(),
		PaymentID:  invoice.PaymentID,
		PaymentURL: invoice.PaymentURL,
		Package:    *pkg,
	}, nil
}

// Packages lists what is currently on sale.
func (s *PurchaseService) Packages(ctx context.Context) ([]models.Package, error) {
	return s.packages.ListActive(ctx)
}

// PendingForUser lists the user's unsettled purchases, newest first.
func (s *PurchaseService) PendingForUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	return s.txs.ListPendingByUser(ctx, userID)
}
