package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/visagelab/visagebot/internal/genimage"
	"github.com/visagelab/visagebot/internal/metrics"
	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/repository"
	"github.com/visagelab/visagebot/internal/translate"
)

// EditingService runs the free generative features: background replacement,
// object replacement and text-to-image. Prompts are translated to English
// first; a translation failure silently falls back to the local dictionary.
type EditingService struct {
	log        *slog.Logger
	gen        *genimage.Client
	translator *translate.Client
	logs       *repository.FeatureLogRepository
	m          *metrics.Metrics
}

func NewEditingService(log *slog.Logger, gen *genimage.Client, translator *translate.Client, logs *repository.FeatureLogRepository, m *metrics.Metrics) *EditingService {
	return &EditingService{log: log, gen: gen, translator: translator, logs: logs, m: m}
}

func (s *EditingService) ChangeBackground(ctx context.Context, user *models.User, imageURL, prompt, styleImageURL, lang string) (*genimage.Image, error) {
	prompt = s.toEnglish(ctx, prompt, lang)
	return s.run(ctx, user, "background", prompt, func(ctx context.Context) (*genimage.Image, error) {
		return s.gen.ChangeBackground(ctx, imageURL, prompt, styleImageURL)
	})
}

func (s *EditingService) ReplaceElement(ctx context.Context, user *models.User, imageURL, prompt, lang string) (*genimage.Image, error) {
	prompt = s.toEnglish(ctx, prompt, lang)
	return s.run(ctx, user, "replace", prompt, func(ctx context.Context) (*genimage.Image, error) {
		return s.gen.ReplaceElement(ctx, imageURL, prompt)
	})
}

func (s *EditingService) GenerateFromText(ctx context.Context, user *models.User, prompt, referenceURL, lang string) (*genimage.Image, error) {
	prompt = s.toEnglish(ctx, prompt, lang)
	return s.run(ctx, user, "text_to_image", prompt, func(ctx context.Context) (*genimage.Image, error) {
		return s.gen.GenerateFromText(ctx, prompt, referenceURL)
	})
}

func (s *EditingService) run(ctx context.Context, user *models.User, feature, detail string, op func(context.Context) (*genimage.Image, error)) (*genimage.Image, error) {
	start := time.Now()
	image, err := op(ctx)
	s.m.FeatureLatency.WithLabelValues(feature).Observe(time.Since(start).Seconds())
	if err != nil {
		s.m.FeatureRuns.WithLabelValues(feature, "error").Inc()
		return nil, fmt.Errorf("%s generation: %w", feature, err)
	}

	s.m.FeatureRuns.WithLabelValues(feature, "ok").Inc()
	if err := s.logs.Log(ctx, user.ID, feature, detail, 0); err != nil {
		s.log.Error("failed to log feature run", "err", err)
	}
	return image, nil
}

// toEnglish translates the prompt for the generative model. English input
// passes through; any translation trouble falls back to the dictionary and the
// flow proceeds.
func (s *EditingService) toEnglish(ctx context.Context, prompt, lang string) string {
	if lang == "" || lang == "en" {
		return prompt
	}
	translated, err := s.translator.Translate(ctx, prompt, lang, "en")
	if err != nil {
		s.log.Warn("prompt translation failed, using dictionary fallback", "err", err)
		return translate.Fallback(prompt)
	}
	return translated
}
