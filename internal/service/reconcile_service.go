package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/visagelab/visagebot/internal/metrics"
	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/payments"
)

var (
	// ErrUnreconcilable means the payment can be matched neither to a local
	// transaction nor to provider-side metadata. Credits are never guessed;
	// the user is pointed to support instead.
	ErrUnreconcilable = errors.New("payment cannot be reconciled")

	// ErrPaymentCheck is a transient provider failure. The transaction stays
	// pending and the check is safe to retry later.
	ErrPaymentCheck = errors.New("payment status check failed")

	// ErrUnknownProvider means the (provider, payment id) pair names a rail
	// this deployment does not run.
	ErrUnknownProvider = errors.New("unknown payment provider")
)

// TransactionStore is the durable transaction log the reconciler drives.
// *repository.TransactionRepository is the production implementation.
type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction) error
	FindByProviderPayment(ctx context.Context, provider, paymentID string) (*models.Transaction, error)
	MarkTerminal(ctx context.Context, provider, paymentID string, status models.TxStatus, payload string) (bool, error)
	CompleteAndGrant(ctx context.Context, provider, paymentID, payload string) (granted bool, newBalance int, err error)
}

// PackageLookup resolves package codes during transaction reconstruction.
type PackageLookup interface {
	GetByCode(ctx context.Context, code string) (*models.Package, error)
}

// ReconcileResult reports what a reconciliation attempt did.
type ReconcileResult struct {
	Status     models.TxStatus
	Granted    bool // credits were granted by this very call
	Credits    int
	NewBalance int // valid only when Granted
	UserID     int64
}

// Reconciler converts provider-reported payment outcomes into at-most-one
// credit grant per transaction. It is safe to invoke concurrently for the same
// payment (user-triggered re-check racing a webhook): the conditional
// pending-to-completed flip inside the store is the serialization point.
type Reconciler struct {
	log       *slog.Logger
	txs       TransactionStore
	packages  PackageLookup
	providers payments.Registry
	m         *metrics.Metrics
}

func NewReconciler(log *slog.Logger, txs TransactionStore, packages PackageLookup, providers payments.Registry, m *metrics.Metrics) *Reconciler {
	return &Reconciler{log: log, txs: txs, packages: packages, providers: providers, m: m}
}

// Check polls the provider for the payment's current status and applies it.
func (r *Reconciler) Check(ctx context.Context, provider, paymentID string) (*ReconcileResult, error) {
	p, ok := r.providers.Get(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	status, err := p.CheckStatus(ctx, paymentID)
	if err != nil || status == payments.StatusError {
		r.m.ReconcileAttempts.WithLabelValues("check_error").Inc()
		if err == nil {
			err = fmt.Errorf("provider %s reported error status", provider)
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentCheck, err)
	}
	return r.Apply(ctx, provider, paymentID, status, "")
}

// Apply reconciles one provider-reported status against the transaction log.
// Replaying the same paid outcome any number of times grants credits exactly
// once.
func (r *Reconciler) Apply(ctx context.Context, provider, paymentID string, status payments.Status, payload string) (*ReconcileResult, error) {
	if status == payments.StatusError {
		r.m.ReconcileAttempts.WithLabelValues("check_error").Inc()
		return nil, fmt.Errorf("%w: provider %s reported error", ErrPaymentCheck, provider)
	}

	tx, err := r.txs.FindByProviderPayment(ctx, provider, paymentID)
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	if tx == nil {
		tx, err = r.reconstruct(ctx, provider, paymentID)
		if err != nil {
			return nil, err
		}
	}

	if tx.Status.Terminal() {
		// Idempotent replay of an already settled payment; terminal states
		// are immutable even if the provider now says something else.
		if status == payments.StatusPaid && tx.Status != models.TxCompleted {
			r.log.Warn("paid status for settled transaction ignored",
				"provider", provider, "payment_id", paymentID, "status", tx.Status)
		}
		r.m.ReconcileAttempts.WithLabelValues("replay").Inc()
		return &ReconcileResult{Status: tx.Status, Credits: tx.Credits, UserID: tx.UserID}, nil
	}

	switch status {
	case payments.StatusPaid:
		granted, balance, err := r.txs.CompleteAndGrant(ctx, provider, paymentID, payload)
		if err != nil {
			return nil, fmt.Errorf("complete and grant: %w", err)
		}
		if !granted {
			// Lost the race to a concurrent reconcile; the grant happened
			// exactly once elsewhere.
			r.m.ReconcileAttempts.WithLabelValues("replay").Inc()
			return &ReconcileResult{Status: models.TxCompleted, Credits: tx.Credits, UserID: tx.UserID}, nil
		}
		r.m.ReconcileAttempts.WithLabelValues("granted").Inc()
		r.m.PaymentsTotal.WithLabelValues(provider, string(models.TxCompleted)).Inc()
		r.m.CreditsGranted.Add(float64(tx.Credits))
		return &ReconcileResult{
			Status:     models.TxCompleted,
			Granted:    true,
			Credits:    tx.Credits,
			NewBalance: balance,
			UserID:     tx.UserID,
		}, nil

	case payments.StatusCanceled, payments.StatusExpired:
		terminal := models.TxCanceled
		if status == payments.StatusExpired {
			terminal = models.TxExpired
		}
		moved, err := r.txs.MarkTerminal(ctx, provider, paymentID, terminal, payload)
		if err != nil {
			return nil, fmt.Errorf("mark %s: %w", terminal, err)
		}
		if moved {
			r.m.ReconcileAttempts.WithLabelValues(string(terminal)).Inc()
			r.m.PaymentsTotal.WithLabelValues(provider, string(terminal)).Inc()
		}
		return &ReconcileResult{Status: terminal, Credits: tx.Credits, UserID: tx.UserID}, nil

	default: // pending
		r.m.ReconcileAttempts.WithLabelValues("pending").Inc()
		return &ReconcileResult{Status: models.TxPending, Credits: tx.Credits, UserID: tx.UserID}, nil
	}
}

// reconstruct rebuilds a missing transaction from provider-side metadata. A
// payment that yields no metadata is unreconcilable: no credits are guessed.
func (r *Reconciler) reconstruct(ctx context.Context, provider, paymentID string) (*models.Transaction, error) {
	p, ok := r.providers.Get(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	data, err := p.PaymentData(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch payment data: %v", ErrPaymentCheck, err)
	}
	if data == nil {
		r.m.ReconcileAttempts.WithLabelValues("unreconcilable").Inc()
		return nil, fmt.Errorf("%w: %s/%s has no metadata", ErrUnreconcilable, provider, paymentID)
	}

	pkg, err := r.packages.GetByCode(ctx, data.PackageCode)
	if err != nil {
		return nil, fmt.Errorf("lookup package %q: %w", data.PackageCode, err)
	}
	if pkg == nil {
		r.m.ReconcileAttempts.WithLabelValues("unreconcilable").Inc()
		return nil, fmt.Errorf("%w: unknown package %q", ErrUnreconcilable, data.PackageCode)
	}

	tx := &models.Transaction{
		UserID:      data.UserID,
		Provider:    provider,
		PaymentID:   paymentID,
		PackageCode: pkg.Code,
		Currency:    pkg.Currency,
		Amount:      data.AmountMinor,
		Credits:     pkg.Credits,
		Status:      models.TxPending,
	}
	if err := r.txs.Create(ctx, tx); err != nil {
		// A concurrent reconcile may have created it first.
		existing, findErr := r.txs.FindByProviderPayment(ctx, provider, paymentID)
		if findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("reconstruct transaction: %w", err)
	}
	r.log.Info("transaction reconstructed from provider metadata",
		"provider", provider, "payment_id", paymentID, "user_id", data.UserID, "package", pkg.Code)
	return tx, nil
}
