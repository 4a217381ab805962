package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/visagelab/visagebot/internal/genimage"
	"github.com/visagelab/visagebot/internal/service"
	"github.com/visagelab/visagebot/internal/session"
)

var hairstyleCatalog = map[string][]string{
	"female": {"Long layers", "Bob", "Pixie", "Curtain bangs", "Shag", "High ponytail"},
	"male":   {"Crew cut", "Pompadour", "Undercut", "Buzz cut", "Textured crop", "Man bun"},
}

// enterHairstyle starts the try-on flow. It requires a prior face-shape
// analysis and enough credits; both are checked before the first question so
// the user never walks a flow they cannot finish.
func (b *Bot) enterHairstyle(ctx context.Context, chatID, userID int64) {
	b.state.Reset(chatID)
	sess := b.state.Get(chatID)

	if sess.FaceShape == "" || len(sess.Landmarks) == 0 || sess.FacePhotoURL == "" {
		b.sendText(chatID, "I need your face shape first. Run /faceshape and send a frontal photo, then come back.")
		return
	}

	balance, ok, err := b.hairstyle.CheckBalance(ctx, userID)
	if err != nil {
		b.log.Error("hairstyle balance check", "err", err)
		b.sendText(chatID, "Could not check your balance right now. Please try again.")
		return
	}
	if !ok {
		b.sendText(chatID, fmt.Sprintf("The try-on costs %d credits and you have %d. Send /buy to top up.", b.hairstyle.Cost(), balance))
		return
	}

	sess.Feature = session.FeatureHairstyle
	sess.Customization = session.SelectingGender
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Women's styles", "gender:female"),
			tgbotapi.NewInlineKeyboardButtonData("Men's styles", "gender:male"),
		),
	)
	b.sendKeyboard(chatID, fmt.Sprintf("Let's find a haircut for your %s face. Which catalog?", sess.FaceShape), keyboard)
}

func (b *Bot) handleHairstyleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, sess *session.Session, tag, value string) {
	if sess.Feature != session.FeatureHairstyle {
		b.answerCallback(cb.ID, "This choice is no longer active")
		return
	}
	chatID := cb.Message.Chat.ID

	switch tag {
	case "gender":
		if sess.Customization != session.SelectingGender {
			b.answerCallback(cb.ID, "This choice is no longer active")
			return
		}
		styles, ok := hairstyleCatalog[value]
		if !ok {
			b.answerCallback(cb.ID, "Unknown catalog")
			return
		}
		b.answerCallback(cb.ID, "")
		sess.Gender = value
		sess.Customization = session.SelectingStyle

		rows := make([][]tgbotapi.InlineKeyboardButton, 0, (len(styles)+1)/2)
		for i := 0; i < len(styles); i += 2 {
			row := []tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData(styles[i], "style:"+strconv.Itoa(i)),
			}
			if i+1 < len(styles) {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(styles[i+1], "style:"+strconv.Itoa(i+1)))
			}
			rows = append(rows, row)
		}
		b.sendKeyboard(chatID, "Pick a style:", tgbotapi.NewInlineKeyboardMarkup(rows...))

	case "style":
		if sess.Customization != session.SelectingStyle {
			b.answerCallback(cb.ID, "This choice is no longer active")
			return
		}
		idx, err := strconv.Atoi(value)
		if err != nil || idx < 0 || idx >= len(hairstyleCatalog[sess.Gender]) {
			b.answerCallback(cb.ID, "Unknown style")
			return
		}
		b.answerCallback(cb.ID, "")
		sess.StyleIndex = idx
		sess.Customization = session.InputColorLength
		sess.Awaiting = session.AwaitHairstyleSelection
		b.sendText(chatID, "What hair color? Type it (e.g. \"chestnut\", \"platinum blonde\") or send \"keep\" to keep yours.")

	case "length":
		if sess.Customization != session.SelectingLength {
			b.answerCallback(cb.ID, "This choice is no longer active")
			return
		}
		b.answerCallback(cb.ID, "")
		sess.HairLength = value
		sess.Customization = session.SelectingTexture
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Straight", "texture:straight"),
				tgbotapi.NewInlineKeyboardButtonData("Wavy", "texture:wavy"),
				tgbotapi.NewInlineKeyboardButtonData("Curly", "texture:curly"),
			),
		)
		b.sendKeyboard(chatID, "And the texture?", keyboard)

	case "texture":
		if sess.Customization != session.SelectingTexture {
			b.answerCallback(cb.ID, "This choice is no longer active")
			return
		}
		b.answerCallback(cb.ID, "")
		sess.Texture = value
		b.runTryOn(ctx, cb.From, chatID, sess)
	}
}

// handleHairColorInput consumes the free-text color step and moves on to the
// length keyboard.
func (b *Bot) handleHairColorInput(chatID int64, sess *session.Session, text string) {
	if sess.Feature != session.FeatureHairstyle || sess.Customization != session.InputColorLength {
		b.sendText(chatID, helpText)
		return
	}
	if !strings.EqualFold(text, "keep") {
		sess.HairColor = text
	}
	sess.Awaiting = session.AwaitNothing
	sess.Customization = session.SelectingLength

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Short", "length:short"),
			tgbotapi.NewInlineKeyboardButtonData("Medium", "length:medium"),
			tgbotapi.NewInlineKeyboardButtonData("Long", "length:long"),
		),
	)
	b.sendKeyboard(chatID, "How long?", keyboard)
}

func (b *Bot) runTryOn(ctx context.Context, from *tgbotapi.User, chatID int64, sess *session.Session) {
	user, err := b.ensureUser(ctx, from, chatID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		b.sendText(chatID, "Something went wrong on our side. Please try again.")
		return
	}

	styles := hairstyleCatalog[sess.Gender]
	styleName := ""
	if sess.StyleIndex >= 0 && sess.StyleIndex < len(styles) {
		styleName = styles[sess.StyleIndex]
	}

	b.sendText(chatID, fmt.Sprintf("Rendering \"%s\" on your photo, this takes up to a minute...", styleName))

	img, err := b.hairstyle.TryOn(ctx, user, genimage.HairstyleOptions{
		ImageURL:   sess.FacePhotoURL,
		Landmarks:  sess.Landmarks,
		FaceShape:  sess.FaceShape,
		StyleIndex: sess.StyleIndex,
		Gender:     sess.Gender,
		Color:      sess.HairColor,
		Length:     sess.HairLength,
		Texture:    sess.Texture,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientCredits):
			b.sendText(chatID, "Your balance dropped below the try-on price before I could charge it, so the render was not delivered. Send /buy to top up.")
		case errors.Is(err, service.ErrFaceShapeRequired):
			b.sendText(chatID, "I need your face shape first. Run /faceshape and come back.")
		default:
			b.log.Error("hairstyle try-on", "err", err)
			b.sendText(chatID, "The render failed and you were not charged. Please try again.")
		}
		return
	}

	b.state.Reset(chatID)
	caption := fmt.Sprintf("Here is \"%s\" on you. %d credits were charged. Send /hairstyle to try another.", styleName, b.hairstyle.Cost())
	switch {
	case img.URL != "":
		b.sendPhotoURL(chatID, img.URL, caption)
	case len(img.Bytes) > 0:
		b.sendPhotoBytes(chatID, img.Bytes, caption)
	default:
		b.sendText(chatID, "The render did not produce an image. Please contact support.")
	}
}
