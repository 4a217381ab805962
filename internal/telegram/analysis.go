package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/visagelab/visagebot/internal/service"
	"github.com/visagelab/visagebot/internal/session"
)

func (b *Bot) runFaceShape(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, fileID string) {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		b.sendText(msg.Chat.ID, "Something went wrong on our side. Please try again.")
		return
	}

	data, contentType, err := b.downloadFile(ctx, fileID)
	if err != nil {
		b.log.Error("download photo", "err", err)
		b.sendText(msg.Chat.ID, "Could not download that photo. Please send it again.")
		return
	}

	b.sendText(msg.Chat.ID, "Analyzing your face shape...")

	result, err := b.analysis.FaceShape(ctx, user, data)
	if errors.Is(err, service.ErrNoFaceDetected) {
		b.sendText(msg.Chat.ID, "I could not find a face on that photo. Send a clear, well-lit frontal shot.")
		return
	}
	if err != nil {
		b.log.Error("face shape analysis", "err", err)
		b.sendText(msg.Chat.ID, "The analysis service is unavailable right now. Please try again later.")
		return
	}

	// The try-on flow renders over this exact photo later, so keep a public
	// copy alongside the analysis results.
	if url, err := b.storage.Upload(ctx, data, contentType); err != nil {
		b.log.Error("store face photo", "err", err)
	} else {
		sess.FacePhotoURL = url
	}
	sess.FaceShape = result.Shape
	sess.Measurements = result.Measurements
	sess.Landmarks = result.Landmarks
	sess.Feature = session.FeatureNone

	caption := fmt.Sprintf("Your face shape: %s\n\n%s\n\nTry /hairstyle to see haircuts picked for this shape.",
		strings.ToUpper(result.Shape), formatMeasurements(result.Measurements))
	if len(result.Visualization) > 0 {
		b.sendPhotoBytes(msg.Chat.ID, result.Visualization, caption)
	} else {
		b.sendText(msg.Chat.ID, caption)
	}
}

func (b *Bot) runSymmetry(ctx context.Context, msg *tgbotapi.Message, fileID string) {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		b.sendText(msg.Chat.ID, "Something went wrong on our side. Please try again.")
		return
	}

	data, _, err := b.downloadFile(ctx, fileID)
	if err != nil {
		b.log.Error("download photo", "err", err)
		b.sendText(msg.Chat.ID, "Could not download that photo. Please send it again.")
		return
	}

	b.sendText(msg.Chat.ID, "Building your symmetry comparison...")

	result, err := b.analysis.Symmetry(ctx, user, data)
	if errors.Is(err, service.ErrNoFaceDetected) {
		b.sendText(msg.Chat.ID, "I could not find a face on that photo. Send a clear, well-lit frontal shot.")
		return
	}
	if err != nil {
		b.log.Error("symmetry analysis", "err", err)
		b.sendText(msg.Chat.ID, "The analysis service is unavailable right now. Please try again later.")
		return
	}

	b.state.Reset(msg.Chat.ID)
	caption := fmt.Sprintf("Symmetry score: %.0f%%\n\nLeft side mirrored | original | right side mirrored.", result.Score*100)
	if len(result.Visualization) > 0 {
		b.sendPhotoBytes(msg.Chat.ID, result.Visualization, caption)
	} else {
		b.sendText(msg.Chat.ID, caption)
	}
}

func (b *Bot) runAttractiveness(ctx context.Context, msg *tgbotapi.Message, fileID string, kind UpdateKind) {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		b.sendText(msg.Chat.ID, "Something went wrong on our side. Please try again.")
		return
	}

	data, _, err := b.downloadFile(ctx, fileID)
	if err != nil {
		b.log.Error("download media", "err", err)
		b.sendText(msg.Chat.ID, "Could not download that file. Please send it again.")
		return
	}

	if kind == KindVideo {
		b.sendText(msg.Chat.ID, "Scoring your video...")
	} else {
		b.sendText(msg.Chat.ID, "Scoring your photo...")
	}

	result, err := b.analysis.Attractiveness(ctx, user, data)
	if errors.Is(err, service.ErrNoFaceDetected) {
		b.sendText(msg.Chat.ID, "I could not find a face there. Send a clear, well-lit frontal shot.")
		return
	}
	if err != nil {
		b.log.Error("attractiveness analysis", "err", err)
		b.sendText(msg.Chat.ID, "The analysis service is unavailable right now. Please try again later.")
		return
	}

	b.state.Reset(msg.Chat.ID)
	b.sendText(msg.Chat.ID, fmt.Sprintf("Attractiveness score: %.1f / 10\n\n%s", result.Score, formatMeasurements(result.Measurements)))
}

func (b *Bot) handleAnalysisMethodCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, sess *session.Session, value string) {
	if sess.Feature != session.FeatureAttractiveness {
		b.answerCallback(cb.ID, "This choice is no longer active")
		return
	}
	sess.Awaiting = session.AwaitNothing
	b.answerCallback(cb.ID, "")
	switch value {
	case "video":
		b.sendText(cb.Message.Chat.ID, "Send me a short video of your face.")
	default:
		b.sendText(cb.Message.Chat.ID, "Send me a frontal photo of your face.")
	}
}

func formatMeasurements(m map[string]float64) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %.2f\n", strings.ReplaceAll(k, "_", " "), m[k])
	}
	return strings.TrimRight(sb.String(), "\n")
}
