package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/visagelab/visagebot/internal/genimage"
	"github.com/visagelab/visagebot/internal/metrics"
	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/repository"
)

// ErrFaceShapeRequired means the user must run the face-shape analysis before
// trying on a hairstyle.
var ErrFaceShapeRequired = errors.New("face shape analysis required first")

// HairstyleService runs the only metered feature. Credits are charged exactly
// once, and only after the render verifiably succeeded: a failed generation
// never costs anything.
type HairstyleService struct {
	log    *slog.Logger
	gen    *genimage.Client
	ledger *LedgerService
	logs   *repository.FeatureLogRepository
	cost   int
	m      *metrics.Metrics
}

func NewHairstyleService(log *slog.Logger, gen *genimage.Client, ledger *LedgerService, logs *repository.FeatureLogRepository, cost int, m *metrics.Metrics) *HairstyleService {
	if cost <= 0 {
		cost = 2
	}
	return &HairstyleService{log: log, gen: gen, ledger: ledger, logs: logs, cost: cost, m: m}
}

// Cost is the credit price of one try-on.
func (s *HairstyleService) Cost() int {
	return s.cost
}

// CheckBalance reports the current balance and whether it covers one try-on.
// Flows call this before collecting the remaining inputs so the user is not
// walked through a customization they cannot pay for.
func (s *HairstyleService) CheckBalance(ctx context.Context, userID int64) (int, bool, error) {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	return balance, balance >= s.cost, nil
}

// TryOn renders the hairstyle and charges the cost on success. If the balance
// was drained between the pre-check and now, the charge fails with
// ErrInsufficientCredits and the result is withheld.
func (s *HairstyleService) TryOn(ctx context.Context, user *models.User, opts genimage.HairstyleOptions) (*genimage.Image, error) {
	if opts.FaceShape == "" || len(opts.Landmarks) == 0 {
		return nil, ErrFaceShapeRequired
	}

	start := time.Now()
	image, err := s.gen.ApplyHairstyle(ctx, opts)
	s.m.FeatureLatency.WithLabelValues("hairstyle").Observe(time.Since(start).Seconds())
	if err != nil {
		s.m.FeatureRuns.WithLabelValues("hairstyle", "error").Inc()
		return nil, fmt.Errorf("apply hairstyle: %w", err)
	}

	if err := s.ledger.Charge(ctx, user.ID, s.cost, "hairstyle", fmt.Sprintf("style=%d", opts.StyleIndex)); err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			s.m.FeatureRuns.WithLabelValues("hairstyle", "insufficient").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("charge try-on: %w", err)
	}

	s.m.FeatureRuns.WithLabelValues("hairstyle", "ok").Inc()
	if err := s.logs.Log(ctx, user.ID, "hairstyle", fmt.Sprintf("style=%d color=%s length=%s", opts.StyleIndex, opts.Color, opts.Length), s.cost); err != nil {
		s.log.Error("failed to log feature run", "err", err)
	}
	return image, nil
}
