package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/service"
	"github.com/visagelab/visagebot/internal/session"
)

func (b *Bot) enterPurchase(ctx context.Context, chatID int64) {
	b.state.Reset(chatID)
	sess := b.state.Get(chatID)

	packages, err := b.purchase.Packages(ctx)
	if err != nil {
		b.log.Error("list packages", "err", err)
		b.sendText(chatID, "Could not load the price list right now. Please try again.")
		return
	}
	if len(packages) == 0 {
		b.sendText(chatID, "No credit packages are on sale right now.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Credit packages:\n\n")
	for i, p := range packages {
		fmt.Fprintf(&sb, "%d. %s: %d credits for %s\n", i+1, p.Title, p.Credits, formatPrice(p))
	}
	sb.WriteString("\nSend the number of the package you want.")

	sess.Feature = session.FeaturePurchase
	sess.Awaiting = session.AwaitPackageSelection
	b.sendText(chatID, sb.String())
}

// handlePurchaseInput consumes the two text steps of the purchase flow:
// package choice, then payment method.
func (b *Bot) handlePurchaseInput(ctx context.Context, msg *tgbotapi.Message, sess *session.Session) {
	text := strings.TrimSpace(msg.Text)

	switch sess.Awaiting {
	case session.AwaitPackageSelection:
		b.selectPackage(ctx, msg.Chat.ID, sess, text)
	case session.AwaitPaymentMethod:
		b.selectPaymentMethod(ctx, msg, sess, text)
	default:
		b.sendText(msg.Chat.ID, helpText)
	}
}

func (b *Bot) selectPackage(ctx context.Context, chatID int64, sess *session.Session, text string) {
	packages, err := b.purchase.Packages(ctx)
	if err != nil {
		b.log.Error("list packages", "err", err)
		b.sendText(chatID, "Could not load the price list right now. Please try again.")
		return
	}

	var chosen *models.Package
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(packages) {
		chosen = &packages[n-1]
	} else {
		for i := range packages {
			if strings.EqualFold(packages[i].Code, text) {
				chosen = &packages[i]
				break
			}
		}
	}
	if chosen == nil {
		b.sendText(chatID, fmt.Sprintf("Please send a number from 1 to %d.", len(packages)))
		return
	}

	sess.PackageCode = chosen.Code
	sess.Awaiting = session.AwaitPaymentMethod
	b.sendText(chatID, fmt.Sprintf("%s: %d credits for %s.\n\nHow would you like to pay?\n1. Crypto\n2. Card", chosen.Title, chosen.Credits, formatPrice(*chosen)))
}

func (b *Bot) selectPaymentMethod(ctx context.Context, msg *tgbotapi.Message, sess *session.Session, text string) {
	var provider string
	switch strings.ToLower(text) {
	case "1", "crypto":
		provider = "cryptoinv"
	case "2", "card":
		provider = "cardpay"
	default:
		b.sendText(msg.Chat.ID, "Send 1 for crypto or 2 for card.")
		return
	}

	user, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		b.sendText(msg.Chat.ID, "Something went wrong on our side. Please try again.")
		return
	}

	intent, err := b.purchase.Initiate(ctx, user, sess.PackageCode, provider)
	if err != nil {
		b.log.Error("initiate purchase", "provider", provider, "err", err)
		b.sendText(msg.Chat.ID, "Could not create the invoice. Please try again in a minute.")
		return
	}

	b.state.Reset(msg.Chat.ID)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Open payment page", intent.PaymentURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("I've paid", fmt.Sprintf("paycheck:%s:%s", intent.Provider, intent.PaymentID)),
		),
	)
	b.sendKeyboard(msg.Chat.ID,
		fmt.Sprintf("Invoice for %s (%d credits, %s) is ready. Pay it and tap \"I've paid\". Credits usually arrive automatically within a minute of payment.",
			intent.Package.Title, intent.Package.Credits, formatPrice(intent.Package)),
		keyboard)
}

// handlePaymentCheckCallback re-checks one payment with its provider. value is
// "<provider>:<payment id>".
func (b *Bot) handlePaymentCheckCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, value string) {
	provider, paymentID, ok := strings.Cut(value, ":")
	if !ok || provider == "" || paymentID == "" {
		b.answerCallback(cb.ID, "Broken payment reference")
		return
	}
	b.answerCallback(cb.ID, "Checking...")
	b.checkPayment(ctx, cb.Message.Chat.ID, provider, paymentID)
}

// handlePaidDeepLink handles the /start payload a payment page redirects to:
// "paid_<provider>_<payment id>".
func (b *Bot) handlePaidDeepLink(ctx context.Context, chatID int64, args string) {
	parts := strings.SplitN(args, "_", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		b.sendText(chatID, "That payment link is malformed. Use /paid to re-check your payments.")
		return
	}
	b.checkPayment(ctx, chatID, parts[1], parts[2])
}

// handlePaidCommand re-checks every pending payment of the user.
func (b *Bot) handlePaidCommand(ctx context.Context, chatID, userID int64) {
	pending, err := b.purchase.PendingForUser(ctx, userID)
	if err != nil {
		b.log.Error("list pending payments", "err", err)
		b.sendText(chatID, "Could not look up your payments right now. Please try again.")
		return
	}
	if len(pending) == 0 {
		b.sendText(chatID, "You have no pending payments. /buy starts a new purchase.")
		return
	}
	for _, tx := range pending {
		b.checkPayment(ctx, chatID, tx.Provider, tx.PaymentID)
	}
}

func (b *Bot) checkPayment(ctx context.Context, chatID int64, provider, paymentID string) {
	result, err := b.reconciler.Check(ctx, provider, paymentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentCheck):
			b.sendText(chatID, "The payment provider is not answering. Your payment is safe, try the check again in a few minutes.")
		case errors.Is(err, service.ErrUnreconcilable):
			b.sendText(chatID, "I could not match this payment to an order. If you were charged, contact support with your payment receipt.")
		case errors.Is(err, service.ErrUnknownProvider):
			b.sendText(chatID, "That payment reference points to a provider I do not know. Contact support.")
		default:
			b.log.Error("payment check", "provider", provider, "payment_id", paymentID, "err", err)
			b.sendText(chatID, "Could not check the payment right now. Please try again.")
		}
		return
	}
	b.NotifyPayment(ctx, result)
}

func formatPrice(p models.Package) string {
	return fmt.Sprintf("%.2f %s", float64(p.PriceMinorUnits)/100, p.Currency)
}
