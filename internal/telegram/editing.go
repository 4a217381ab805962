package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/visagelab/visagebot/internal/genimage"
	"github.com/visagelab/visagebot/internal/session"
)

// backgroundPresets maps the inline-keyboard choices to ready-made prompts.
var backgroundPresets = map[string]string{
	"studio": "clean professional photo studio backdrop, soft light",
	"beach":  "sunny tropical beach with turquoise water",
	"city":   "night city street with neon lights, bokeh",
	"office": "modern bright office interior",
	"forest": "green forest with sun rays through the trees",
}

func (b *Bot) takeBackgroundPhoto(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, fileID string) {
	if sess.PhotoURL != "" && sess.Awaiting == session.AwaitStyleImage {
		b.takeStyleImage(ctx, msg, sess, fileID)
		return
	}

	url, ok := b.uploadForGeneration(ctx, msg.Chat.ID, fileID)
	if !ok {
		return
	}
	sess.PhotoURL = url
	sess.Awaiting = session.AwaitStyleChoice

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Studio", "bgstyle:studio"),
			tgbotapi.NewInlineKeyboardButtonData("Beach", "bgstyle:beach"),
			tgbotapi.NewInlineKeyboardButtonData("City", "bgstyle:city"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Office", "bgstyle:office"),
			tgbotapi.NewInlineKeyboardButtonData("Forest", "bgstyle:forest"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Describe my own", "bgstyle:custom"),
			tgbotapi.NewInlineKeyboardButtonData("Copy from a photo", "bgstyle:image"),
		),
	)
	b.sendKeyboard(msg.Chat.ID, "Pick a background, describe your own, or send a photo whose background I should copy.", keyboard)
}

// takeStyleImage receives the reference photo whose background the user wants
// copied onto their own.
func (b *Bot) takeStyleImage(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, fileID string) {
	url, ok := b.uploadForGeneration(ctx, msg.Chat.ID, fileID)
	if !ok {
		return
	}
	sess.StyleImageURL = url
	b.generateBackground(ctx, msg.From, msg.Chat.ID, sess, "")
}

func (b *Bot) takeReplacePhoto(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, fileID string) {
	url, ok := b.uploadForGeneration(ctx, msg.Chat.ID, fileID)
	if !ok {
		return
	}
	sess.PhotoURL = url
	sess.Awaiting = session.AwaitReplacePrompt
	b.sendText(msg.Chat.ID, "Now tell me what to change, e.g. \"replace the red car with a bicycle\".")
}

// takeReferencePhoto stores an optional reference image for text-to-image
// generation; the flow keeps waiting for the text prompt.
func (b *Bot) takeReferencePhoto(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, fileID string) {
	url, ok := b.uploadForGeneration(ctx, msg.Chat.ID, fileID)
	if !ok {
		return
	}
	sess.PhotoURL = url
	sess.Awaiting = session.AwaitTextPrompt
	b.sendText(msg.Chat.ID, "Got the reference. Now describe the image you want.")
}

// handlePromptInput receives free-form text a feature flow is waiting for.
func (b *Bot) handlePromptInput(ctx context.Context, msg *tgbotapi.Message, sess *session.Session) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		b.sendText(msg.Chat.ID, "Please send a text description.")
		return
	}

	switch sess.Awaiting {
	case session.AwaitTextPrompt:
		b.generateFromText(ctx, msg.From, msg.Chat.ID, sess, text)
	case session.AwaitReplacePrompt:
		b.generateReplace(ctx, msg.From, msg.Chat.ID, sess, text)
	case session.AwaitBackgroundPrompt, session.AwaitStyleChoice:
		// Typed text while the style keyboard is up counts as a custom
		// description.
		b.generateBackground(ctx, msg.From, msg.Chat.ID, sess, text)
	case session.AwaitHairstyleSelection:
		b.handleHairColorInput(msg.Chat.ID, sess, text)
	default:
		b.sendText(msg.Chat.ID, helpText)
	}
}

func (b *Bot) handleBackgroundStyleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, sess *session.Session, value string) {
	if sess.Feature != session.FeatureBackground || sess.PhotoURL == "" {
		b.answerCallback(cb.ID, "This choice is no longer active")
		return
	}
	b.answerCallback(cb.ID, "")
	chatID := cb.Message.Chat.ID

	switch value {
	case "custom":
		sess.Awaiting = session.AwaitBackgroundPrompt
		b.sendText(chatID, "Describe the background you want.")
	case "image":
		sess.Awaiting = session.AwaitStyleImage
		b.sendText(chatID, "Send the photo whose background I should copy.")
	default:
		prompt, ok := backgroundPresets[value]
		if !ok {
			b.sendText(chatID, "Unknown style, pick one from the keyboard.")
			return
		}
		b.generateBackground(ctx, cb.From, chatID, sess, prompt)
	}
}

func (b *Bot) generateBackground(ctx context.Context, from *tgbotapi.User, chatID int64, sess *session.Session, prompt string) {
	user, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		b.sendText(chatID, "Something went wrong on our side. Please try again.")
		return
	}

	b.sendText(chatID, "Replacing the background, this takes up to a minute...")
	img, err := b.editing.ChangeBackground(ctx, user, sess.PhotoURL, prompt, sess.StyleImageURL, sess.LanguageCode)
	b.deliverEdit(chatID, img, err, "Here is your photo with the new background.")
}

func (b *Bot) generateReplace(ctx context.Context, from *tgbotapi.User, chatID int64, sess *session.Session, prompt string) {
	user, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		b.sendText(chatID, "Something went wrong on our side. Please try again.")
		return
	}

	b.sendText(chatID, "Working on it, this takes up to a minute...")
	img, err := b.editing.ReplaceElement(ctx, user, sess.PhotoURL, prompt, sess.LanguageCode)
	b.deliverEdit(chatID, img, err, "Done! Here is the edited photo.")
}

func (b *Bot) generateFromText(ctx context.Context, from *tgbotapi.User, chatID int64, sess *session.Session, prompt string) {
	user, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		b.sendText(chatID, "Something went wrong on our side. Please try again.")
		return
	}

	b.sendText(chatID, "Generating, this takes up to a minute...")
	img, err := b.editing.GenerateFromText(ctx, user, prompt, sess.PhotoURL, sess.LanguageCode)
	b.deliverEdit(chatID, img, err, "Here is your image.")
}

// deliverEdit sends a finished generation and closes the flow, or reports the
// failure while keeping long-lived state intact.
func (b *Bot) deliverEdit(chatID int64, img *genimage.Image, err error, caption string) {
	if err != nil {
		b.log.Error("image generation", "err", err)
		b.sendText(chatID, "Generation failed. Please try again, your photo was not lost: just resend the description.")
		return
	}
	b.state.Reset(chatID)
	switch {
	case img.URL != "":
		b.sendPhotoURL(chatID, img.URL, caption)
	case len(img.Bytes) > 0:
		b.sendPhotoBytes(chatID, img.Bytes, caption)
	default:
		b.sendText(chatID, "Generation returned no image. Please try again.")
	}
}
