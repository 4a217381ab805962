package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/visagelab/visagebot/internal/session"
)

// handleMedia routes an incoming photo or video to the active feature flow.
func (b *Bot) handleMedia(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, kind UpdateKind) {
	fileID := mediaFileID(msg)
	if fileID == "" {
		b.sendText(msg.Chat.ID, "I could not read that file. Please send it as a photo or video.")
		return
	}

	switch sess.Feature {
	case session.FeatureFaceShape:
		b.runFaceShape(ctx, msg, sess, fileID)
	case session.FeatureSymmetry:
		b.runSymmetry(ctx, msg, fileID)
	case session.FeatureAttractiveness:
		b.runAttractiveness(ctx, msg, fileID, kind)
	case session.FeatureBackground:
		b.takeBackgroundPhoto(ctx, msg, sess, fileID)
	case session.FeatureReplace:
		b.takeReplacePhoto(ctx, msg, sess, fileID)
	case session.FeatureTextToImage:
		b.takeReferencePhoto(ctx, msg, sess, fileID)
	default:
		b.sendText(msg.Chat.ID, "Pick a feature first, then send the media. /menu shows the list.")
	}
}

// mediaFileID picks the best file id out of a message: the largest photo size,
// an image document, or a video.
func mediaFileID(msg *tgbotapi.Message) string {
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID
	}
	if msg.Document != nil {
		return msg.Document.FileID
	}
	if msg.Video != nil {
		return msg.Video.FileID
	}
	if msg.VideoNote != nil {
		return msg.VideoNote.FileID
	}
	return ""
}

// uploadForGeneration downloads a Telegram file and republishes it at a public
// URL the generation API can fetch.
func (b *Bot) uploadForGeneration(ctx context.Context, chatID int64, fileID string) (string, bool) {
	data, contentType, err := b.downloadFile(ctx, fileID)
	if err != nil {
		b.log.Error("download media", "err", err)
		b.sendText(chatID, "Could not download that file from Telegram. Please send it again.")
		return "", false
	}
	url, err := b.storage.Upload(ctx, data, contentType)
	if err != nil {
		b.log.Error("upload media", "err", err)
		b.sendText(chatID, "Could not process that file right now. Please try again in a minute.")
		return "", false
	}
	return url, true
}
