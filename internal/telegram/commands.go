package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/visagelab/visagebot/internal/service"
	"github.com/visagelab/visagebot/internal/session"
)

const helpText = `I can analyze your photos and restyle them.

1 /faceshape - face shape analysis
2 /symmetry - face symmetry check
3 /attractiveness - attractiveness score
4 /hairstyle - virtual hairstyle try-on (uses credits)
5 /background - replace the photo background
6 /replace - replace an object in a photo
7 /imagine - generate an image from text
8 /buy - buy credits

/balance - check your credits
/promo CODE - redeem a promo code
/paid - re-check a pending payment

Send a number or a command to start.`

// handleCommand runs top-level commands. Every feature entry resets the
// session first so no wait-state leaks between flows.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, command string) {
	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "command", command, "err", err)
		b.sendText(msg.Chat.ID, "Something went wrong on our side. Please try again.")
		return
	}

	switch command {
	case "start":
		b.state.Reset(msg.Chat.ID)
		if args := strings.TrimSpace(msg.CommandArguments()); strings.HasPrefix(args, "paid_") {
			b.handlePaidDeepLink(ctx, msg.Chat.ID, args)
			return
		}
		b.sendText(msg.Chat.ID, fmt.Sprintf("Hi, %s!\n\n%s", user.FirstName, helpText))
	case "help", "menu":
		b.state.Reset(msg.Chat.ID)
		b.sendText(msg.Chat.ID, helpText)
	case "balance":
		b.handleBalance(ctx, msg.Chat.ID, user.ID)
	case "promo":
		b.handlePromo(ctx, msg, user.ID)
	case "paid":
		b.handlePaidCommand(ctx, msg.Chat.ID, user.ID)
	case "faceshape":
		b.enterFaceShape(msg.Chat.ID)
	case "symmetry":
		b.enterSymmetry(msg.Chat.ID)
	case "attractiveness":
		b.enterAttractiveness(msg.Chat.ID)
	case "hairstyle":
		b.enterHairstyle(ctx, msg.Chat.ID, user.ID)
	case "background":
		b.enterBackground(msg.Chat.ID)
	case "replace":
		b.enterReplace(msg.Chat.ID)
	case "imagine":
		b.enterTextToImage(msg.Chat.ID)
	case "buy":
		b.enterPurchase(ctx, msg.Chat.ID)
	default:
		b.sendText(msg.Chat.ID, "Unknown command. Send /menu to see what I can do.")
	}
}

func (b *Bot) handleBalance(ctx context.Context, chatID, userID int64) {
	balance, err := b.ledger.Balance(ctx, userID)
	if err != nil {
		b.log.Error("get balance", "err", err)
		b.sendText(chatID, "Could not fetch your balance right now. Please try again.")
		return
	}
	used, err := b.analysis.UsageToday(ctx, userID)
	if err != nil {
		b.log.Error("usage today", "err", err)
		used = 0
	}
	b.sendText(chatID, fmt.Sprintf("Your balance: %d credits.\nFeatures used today: %d.\n\nHairstyle try-on costs %d credits. Send /buy to top up.", balance, used, b.hairstyle.Cost()))
}

func (b *Bot) handlePromo(ctx context.Context, msg *tgbotapi.Message, userID int64) {
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		b.sendText(msg.Chat.ID, "Usage: /promo CODE")
		return
	}
	if err := b.promo.Apply(ctx, userID, code, b.cfg.PromoBonus); err != nil {
		switch {
		case errors.Is(err, service.ErrPromoInvalid):
			b.sendText(msg.Chat.ID, "That promo code is not valid.")
		case errors.Is(err, service.ErrPromoAlreadyRedeemed):
			b.sendText(msg.Chat.ID, "You have already used this promo code.")
		default:
			b.log.Error("apply promo", "err", err)
			b.sendText(msg.Chat.ID, "Could not apply the promo code, please try again later.")
		}
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Promo code accepted! +%d credits.", b.cfg.PromoBonus))
}

func (b *Bot) enterFaceShape(chatID int64) {
	b.state.Reset(chatID)
	sess := b.state.Get(chatID)
	sess.Feature = session.FeatureFaceShape
	b.sendText(chatID, "Send me a clear frontal photo of your face and I will determine your face shape.")
}

func (b *Bot) enterSymmetry(chatID int64) {
	b.state.Reset(chatID)
	sess := b.state.Get(chatID)
	sess.Feature = session.FeatureSymmetry
	b.sendText(chatID, "Send me a frontal photo and I will build your symmetry comparison.")
}

func (b *Bot) enterAttractiveness(chatID int64) {
	b.state.Reset(chatID)
	sess := b.state.Get(chatID)
	sess.Feature = session.FeatureAttractiveness
	sess.Awaiting = session.AwaitAnalysisMethod
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Photo", "method:photo"),
			tgbotapi.NewInlineKeyboardButtonData("Video", "method:video"),
		),
	)
	b.sendKeyboard(chatID, "I can score a photo or a short video. Pick one, or just send the media.", keyboard)
}

func (b *Bot) enterBackground(chatID int64) {
	b.state.Reset(chatID)
	sess := b.state.Get(chatID)
	sess.Feature = session.FeatureBackground
	b.sendText(chatID, "Send the photo whose background you want to replace.")
}

func (b *Bot) enterReplace(chatID int64) {
	b.state.Reset(chatID)
	sess := b.state.Get(chatID)
	sess.Feature = session.FeatureReplace
	b.sendText(chatID, "Send the photo with the object you want to replace.")
}

func (b *Bot) enterTextToImage(chatID int64) {
	b.state.Reset(chatID)
	sess := b.state.Get(chatID)
	sess.Feature = session.FeatureTextToImage
	sess.Awaiting = session.AwaitTextPrompt
	b.sendText(chatID, "Describe the image you want me to create. You can also send a reference photo first.")
}
