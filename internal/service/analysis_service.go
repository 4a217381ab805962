package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/visagelab/visagebot/internal/metrics"
	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/repository"
	"github.com/visagelab/visagebot/internal/vision"
)

// ErrNoFaceDetected means the analyzer found no face in the submitted media.
// This is a user-input problem, answered with guidance rather than logged as a
// fault.
var ErrNoFaceDetected = errors.New("no face detected")

// AnalysisService runs the free vision features: face shape, symmetry and
// attractiveness.
type AnalysisService struct {
	log    *slog.Logger
	vision *vision.Client
	logs   *repository.FeatureLogRepository
	m      *metrics.Metrics
}

func NewAnalysisService(log *slog.Logger, visionClient *vision.Client, logs *repository.FeatureLogRepository, m *metrics.Metrics) *AnalysisService {
	return &AnalysisService{log: log, vision: visionClient, logs: logs, m: m}
}

func (s *AnalysisService) FaceShape(ctx context.Context, user *models.User, image []byte) (*vision.FaceShapeResult, error) {
	start := time.Now()
	result, err := s.vision.AnalyzeFaceShape(ctx, image)
	s.m.FeatureLatency.WithLabelValues("face_shape").Observe(time.Since(start).Seconds())
	if err != nil {
		s.m.FeatureRuns.WithLabelValues("face_shape", "error").Inc()
		return nil, fmt.Errorf("analyze face shape: %w", err)
	}
	if result == nil {
		s.m.FeatureRuns.WithLabelValues("face_shape", "no_face").Inc()
		return nil, ErrNoFaceDetected
	}

	s.m.FeatureRuns.WithLabelValues("face_shape", "ok").Inc()
	if err := s.logs.Log(ctx, user.ID, "face_shape", result.Shape, 0); err != nil {
		s.log.Error("failed to log feature run", "err", err)
	}
	return result, nil
}

func (s *AnalysisService) Symmetry(ctx context.Context, user *models.User, image []byte) (*vision.SymmetryResult, error) {
	start := time.Now()
	result, err := s.vision.AnalyzeSymmetry(ctx, image)
	s.m.FeatureLatency.WithLabelValues("symmetry").Observe(time.Since(start).Seconds())
	if err != nil {
		s.m.FeatureRuns.WithLabelValues("symmetry", "error").Inc()
		return nil, fmt.Errorf("analyze symmetry: %w", err)
	}
	if result == nil {
		s.m.FeatureRuns.WithLabelValues("symmetry", "no_face").Inc()
		return nil, ErrNoFaceDetected
	}

	s.m.FeatureRuns.WithLabelValues("symmetry", "ok").Inc()
	if err := s.logs.Log(ctx, user.ID, "symmetry", fmt.Sprintf("score=%.2f", result.Score), 0); err != nil {
		s.log.Error("failed to log feature run", "err", err)
	}
	return result, nil
}

func (s *AnalysisService) Attractiveness(ctx context.Context, user *models.User, image []byte) (*vision.ScoreResult, error) {
	start := time.Now()
	result, err := s.vision.ScoreAttractiveness(ctx, image)
	s.m.FeatureLatency.WithLabelValues("attractiveness").Observe(time.Since(start).Seconds())
	if err != nil {
		s.m.FeatureRuns.WithLabelValues("attractiveness", "error").Inc()
		return nil, fmt.Errorf("score attractiveness: %w", err)
	}
	if result == nil {
		s.m.FeatureRuns.WithLabelValues("attractiveness", "no_face").Inc()
		return nil, ErrNoFaceDetected
	}

	s.m.FeatureRuns.WithLabelValues("attractiveness", "ok").Inc()
	if err := s.logs.Log(ctx, user.ID, "attractiveness", fmt.Sprintf("score=%.2f", result.Score), 0); err != nil {
		s.log.Error("failed to log feature run", "err", err)
	}
	return result, nil
}

// UsageToday counts how many feature runs the user completed today.
func (s *AnalysisService) UsageToday(ctx context.Context, userID int64) (int, error) {
	return s.logs.CountForDay(ctx, userID, time.Now().UTC())
}
