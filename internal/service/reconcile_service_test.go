package service_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/visagelab/visagebot/internal/metrics"
	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/payments"
	"github.com/visagelab/visagebot/internal/service"
)

type fakeTxStore struct {
	txs     map[string]*models.Transaction
	balance map[int64]int
	grants  int
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{
		txs:     make(map[string]*models.Transaction),
		balance: make(map[int64]int),
	}
}

func key(provider, paymentID string) string { return provider + "/" + paymentID }

func (f *fakeTxStore) Create(_ context.Context, t *models.Transaction) error {
	k := key(t.Provider, t.PaymentID)
	if _, ok := f.txs[k]; ok {
		return errors.New("duplicate transaction")
	}
	cp := *t
	f.txs[k] = &cp
	return nil
}

func (f *fakeTxStore) FindByProviderPayment(_ context.Context, provider, paymentID string) (*models.Transaction, error) {
	t, ok := f.txs[key(provider, paymentID)]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTxStore) MarkTerminal(_ context.Context, provider, paymentID string, status models.TxStatus, _ string) (bool, error) {
	t, ok := f.txs[key(provider, paymentID)]
	if !ok || t.Status != models.TxPending {
		return false, nil
	}
	t.Status = status
	return true, nil
}

func (f *fakeTxStore) CompleteAndGrant(_ context.Context, provider, paymentID, _ string) (bool, int, error) {
	t, ok := f.txs[key(provider, paymentID)]
	if !ok {
		return false, 0, errors.New("transaction not found")
	}
	if t.Status != models.TxPending {
		return false, 0, nil
	}
	t.Status = models.TxCompleted
	f.balance[t.UserID] += t.Credits
	f.grants++
	return true, f.balance[t.UserID], nil
}

type fakePackages struct {
	packages map[string]*models.Package
}

func (f *fakePackages) GetByCode(_ context.Context, code string) (*models.Package, error) {
	return f.packages[code], nil
}

type fakeProvider struct {
	name   string
	status payments.Status
	err    error
	data   *payments.PaymentData
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) CreateInvoice(context.Context, payments.CreateInvoiceRequest) (*payments.Invoice, error) {
	return nil, errors.New("not used")
}

func (p *fakeProvider) CheckStatus(context.Context, string) (payments.Status, error) {
	return p.status, p.err
}

func (p *fakeProvider) PaymentData(context.Context, string) (*payments.PaymentData, error) {
	return p.data, nil
}

func newReconciler(store *fakeTxStore, provider *fakeProvider, pkgs *fakePackages) *service.Reconciler {
	if pkgs == nil {
		pkgs = &fakePackages{packages: map[string]*models.Package{}}
	}
	return service.NewReconciler(
		slog.Default(),
		store,
		pkgs,
		payments.NewRegistry(provider),
		metrics.Registry("test"),
	)
}

func pendingTx(store *fakeTxStore, provider, paymentID string, userID int64, credits int) {
	store.txs[key(provider, paymentID)] = &models.Transaction{
		UserID:    userID,
		Provider:  provider,
		PaymentID: paymentID,
		Credits:   credits,
		Status:    models.TxPending,
	}
}

func TestCheckPaidGrantsExactlyOnce(t *testing.T) {
	store := newFakeTxStore()
	pendingTx(store, "cardpay", "pay-1", 7, 50)
	r := newReconciler(store, &fakeProvider{name: "cardpay", status: payments.StatusPaid}, nil)

	result, err := r.Check(context.Background(), "cardpay", "pay-1")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if !result.Granted || result.Credits != 50 || result.NewBalance != 50 || result.UserID != 7 {
		t.Fatalf("first check result = %+v", result)
	}

	// Replaying the same paid outcome must not grant again.
	for i := 0; i < 3; i++ {
		result, err = r.Check(context.Background(), "cardpay", "pay-1")
		if err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
		if result.Granted {
			t.Fatalf("replay %d granted credits again", i)
		}
		if result.Status != models.TxCompleted {
			t.Fatalf("replay %d status = %v", i, result.Status)
		}
	}
	if store.grants != 1 {
		t.Fatalf("grants = %d, want 1", store.grants)
	}
	if store.balance[7] != 50 {
		t.Fatalf("balance = %d, want 50", store.balance[7])
	}
}

func TestApplyCanceledAndExpiredAreTerminal(t *testing.T) {
	for _, tc := range []struct {
		status payments.Status
		want   models.TxStatus
	}{
		{payments.StatusCanceled, models.TxCanceled},
		{payments.StatusExpired, models.TxExpired},
	} {
		t.Run(string(tc.status), func(t *testing.T) {
			store := newFakeTxStore()
			pendingTx(store, "cryptoinv", "inv-1", 3, 10)
			r := newReconciler(store, &fakeProvider{name: "cryptoinv", status: tc.status}, nil)

			result, err := r.Apply(context.Background(), "cryptoinv", "inv-1", tc.status, "")
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if result.Status != tc.want {
				t.Fatalf("status = %v, want %v", result.Status, tc.want)
			}

			// A late paid report must not resurrect a settled transaction.
			result, err = r.Apply(context.Background(), "cryptoinv", "inv-1", payments.StatusPaid, "")
			if err != nil {
				t.Fatalf("late paid: %v", err)
			}
			if result.Granted || result.Status != tc.want {
				t.Fatalf("late paid result = %+v, terminal state must be immutable", result)
			}
			if store.grants != 0 {
				t.Fatal("credits granted for a settled transaction")
			}
		})
	}
}

func TestApplyPendingLeavesTransactionOpen(t *testing.T) {
	store := newFakeTxStore()
	pendingTx(store, "cardpay", "pay-2", 9, 25)
	r := newReconciler(store, &fakeProvider{name: "cardpay", status: payments.StatusPending}, nil)

	result, err := r.Apply(context.Background(), "cardpay", "pay-2", payments.StatusPending, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Status != models.TxPending || result.Granted {
		t.Fatalf("result = %+v", result)
	}
	if store.txs[key("cardpay", "pay-2")].Status != models.TxPending {
		t.Fatal("pending transaction was mutated")
	}
}

func TestCheckProviderFailureIsTransient(t *testing.T) {
	store := newFakeTxStore()
	pendingTx(store, "cardpay", "pay-3", 9, 25)
	r := newReconciler(store, &fakeProvider{name: "cardpay", err: fmt.Errorf("timeout")}, nil)

	_, err := r.Check(context.Background(), "cardpay", "pay-3")
	if !errors.Is(err, service.ErrPaymentCheck) {
		t.Fatalf("err = %v, want ErrPaymentCheck", err)
	}
	if store.txs[key("cardpay", "pay-3")].Status != models.TxPending {
		t.Fatal("transient failure must leave the transaction pending")
	}
}

func TestCheckUnknownProvider(t *testing.T) {
	r := newReconciler(newFakeTxStore(), &fakeProvider{name: "cardpay"}, nil)
	_, err := r.Check(context.Background(), "bankwire", "x")
	if !errors.Is(err, service.ErrUnknownProvider) {
		t.Fatalf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestApplyReconstructsMissingTransaction(t *testing.T) {
	store := newFakeTxStore()
	provider := &fakeProvider{
		name:   "cryptoinv",
		status: payments.StatusPaid,
		data:   &payments.PaymentData{UserID: 11, PackageCode: "standard", AmountMinor: 2000},
	}
	pkgs := &fakePackages{packages: map[string]*models.Package{
		"standard": {Code: "standard", Credits: 50, Currency: "USD"},
	}}
	r := newReconciler(store, provider, pkgs)

	result, err := r.Apply(context.Background(), "cryptoinv", "lost-1", payments.StatusPaid, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !result.Granted || result.Credits != 50 || result.UserID != 11 {
		t.Fatalf("result = %+v", result)
	}
	if store.balance[11] != 50 {
		t.Fatalf("balance = %d, want 50", store.balance[11])
	}
}

func TestApplyUnreconcilableWithoutMetadata(t *testing.T) {
	store := newFakeTxStore()
	r := newReconciler(store, &fakeProvider{name: "cryptoinv", status: payments.StatusPaid}, nil)

	_, err := r.Apply(context.Background(), "cryptoinv", "ghost-1", payments.StatusPaid, "")
	if !errors.Is(err, service.ErrUnreconcilable) {
		t.Fatalf("err = %v, want ErrUnreconcilable", err)
	}
	if store.grants != 0 || len(store.txs) != 0 {
		t.Fatal("unreconcilable payment must not create state or grant credits")
	}
}

func TestApplyUnreconcilableWithUnknownPackage(t *testing.T) {
	store := newFakeTxStore()
	provider := &fakeProvider{
		name:   "cryptoinv",
		status: payments.StatusPaid,
		data:   &payments.PaymentData{UserID: 11, PackageCode: "retired-tier"},
	}
	r := newReconciler(store, provider, nil)

	_, err := r.Apply(context.Background(), "cryptoinv", "lost-2", payments.StatusPaid, "")
	if !errors.Is(err, service.ErrUnreconcilable) {
		t.Fatalf("err = %v, want ErrUnreconcilable", err)
	}
	if store.grants != 0 {
		t.Fatal("credits granted for an unknown package")
	}
}
