package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/visagelab/visagebot/internal/metrics"
	"github.com/visagelab/visagebot/internal/repository"
)

// ErrInsufficientCredits is returned by Charge when the balance does not cover
// the requested amount. No partial deduction happens.
var ErrInsufficientCredits = errors.New("insufficient credits")

// LedgerService is the single entry point for balance changes. It owns no
// transaction records; purchase bookkeeping belongs to the reconciliation
// engine.
type LedgerService struct {
	ledger *repository.LedgerRepository
	m      *metrics.Metrics
}

func NewLedgerService(ledger *repository.LedgerRepository, m *metrics.Metrics) *LedgerService {
	return &LedgerService{ledger: ledger, m: m}
}

func (s *LedgerService) Balance(ctx context.Context, userID int64) (int, error) {
	return s.ledger.Balance(ctx, userID)
}

// Charge deducts amount atomically; the balance never goes negative and of two
// concurrent charges against a barely sufficient balance exactly one succeeds.
func (s *LedgerService) Charge(ctx context.Context, userID int64, amount int, reason, ref string) error {
	ok, err := s.ledger.Charge(ctx, userID, amount, reason, ref)
	if err != nil {
		return fmt.Errorf("charge user %d: %w", userID, err)
	}
	if !ok {
		return ErrInsufficientCredits
	}
	s.m.CreditsCharged.Add(float64(amount))
	return nil
}

// Credit adds amount and returns the new balance.
func (s *LedgerService) Credit(ctx context.Context, userID int64, amount int, reason, ref string) (int, error) {
	balance, err := s.ledger.Credit(ctx, userID, amount, reason, ref)
	if err != nil {
		return 0, fmt.Errorf("credit user %d: %w", userID, err)
	}
	s.m.CreditsGranted.Add(float64(amount))
	return balance, nil
}
