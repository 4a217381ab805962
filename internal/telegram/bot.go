package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/visagelab/visagebot/internal/config"
	"github.com/visagelab/visagebot/internal/metrics"
	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/service"
	"github.com/visagelab/visagebot/internal/session"
)

// ImageStorage uploads media and returns a public URL the generative API can
// fetch.
type ImageStorage interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type Bot struct {
	cfg        config.Config
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	users      *service.UserService
	analysis   *service.AnalysisService
	editing    *service.EditingService
	hairstyle  *service.HairstyleService
	purchase   *service.PurchaseService
	reconciler *service.Reconciler
	promo      *service.PromoService
	ledger     *service.LedgerService
	storage    ImageStorage
	state      *session.Store
	httpClient *http.Client
	m          *metrics.Metrics
}

func NewBot(
	cfg config.Config,
	api *tgbotapi.BotAPI,
	log *slog.Logger,
	users *service.UserService,
	analysis *service.AnalysisService,
	editing *service.EditingService,
	hairstyle *service.HairstyleService,
	purchase *service.PurchaseService,
	reconciler *service.Reconciler,
	promo *service.PromoService,
	ledger *service.LedgerService,
	storage ImageStorage,
	m *metrics.Metrics,
) *Bot {
	return &Bot{
		cfg:        cfg,
		api:        api,
		log:        log,
		users:      users,
		analysis:   analysis,
		editing:    editing,
		hairstyle:  hairstyle,
		purchase:   purchase,
		reconciler: reconciler,
		promo:      promo,
		ledger:     ledger,
		storage:    storage,
		state:      session.NewStore(),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		m:          m,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			go b.handleUpdate(ctx, update)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

// handleUpdate is the per-update guard: it serializes handling per chat,
// recovers from panics, and guarantees that a broken update never takes the
// process down.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	chatID := chatIDOf(update)
	if chatID == 0 {
		return
	}

	b.state.Lock(chatID)
	defer b.state.Unlock(chatID)

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while handling update", "chat_id", chatID, "panic", r)
			b.m.Errors.WithLabelValues("telegram").Inc()
			b.sendText(chatID, "Something went wrong on our side. Please try again.")
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.m.UpdatesTotal.WithLabelValues(KindCallback.String()).Inc()
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func chatIDOf(update tgbotapi.Update) int64 {
	if update.Message != nil {
		return update.Message.Chat.ID
	}
	if update.CallbackQuery != nil && update.CallbackQuery.Message != nil {
		return update.CallbackQuery.Message.Chat.ID
	}
	return 0
}

func messageKind(msg *tgbotapi.Message) UpdateKind {
	switch {
	case msg.IsCommand():
		return KindCommand
	case len(msg.Photo) > 0 || (msg.Document != nil && strings.HasPrefix(strings.ToLower(msg.Document.MimeType), "image/")):
		return KindPhoto
	case msg.Video != nil || msg.VideoNote != nil:
		return KindVideo
	default:
		return KindText
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	kind := messageKind(msg)
	b.m.UpdatesTotal.WithLabelValues(kind.String()).Inc()

	sess := b.state.Get(msg.Chat.ID)
	if msg.From != nil && msg.From.LanguageCode != "" {
		sess.LanguageCode = msg.From.LanguageCode
	}

	switch decide(kind, msg.Text, sess) {
	case RouteCommand:
		b.handleCommand(ctx, msg, msg.Command())
	case RoutePurchase:
		b.handlePurchaseInput(ctx, msg, sess)
	case RouteMedia:
		b.handleMedia(ctx, msg, sess, kind)
	case RouteNoActiveFeature:
		b.sendText(msg.Chat.ID, "There is no active feature right now. Send /menu to pick one.")
	case RoutePrompt:
		b.handlePromptInput(ctx, msg, sess)
	case RouteMenuShortcut:
		cmd, _ := MenuShortcut(msg.Text)
		b.handleCommand(ctx, msg, cmd)
	default:
		b.sendText(msg.Chat.ID, helpText)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	sess := b.state.Get(chatID)
	if cb.From != nil && cb.From.LanguageCode != "" {
		sess.LanguageCode = cb.From.LanguageCode
	}

	// An in-flight purchase owns the conversation, buttons on older messages
	// included.
	if decide(KindCallback, "", sess) == RoutePurchase {
		b.answerCallback(cb.ID, "")
		b.sendText(chatID, "Please finish the purchase first: reply with a number from the list, or send /menu to cancel.")
		return
	}

	tag, value, _ := strings.Cut(cb.Data, ":")
	switch tag {
	case "gender", "style", "length", "texture":
		b.handleHairstyleCallback(ctx, cb, sess, tag, value)
	case "method":
		b.handleAnalysisMethodCallback(ctx, cb, sess, value)
	case "bgstyle":
		b.handleBackgroundStyleCallback(ctx, cb, sess, value)
	case "paycheck":
		b.handlePaymentCheckCallback(ctx, cb, value)
	default:
		b.answerCallback(cb.ID, "Unknown action")
	}
}

func (b *Bot) answerCallback(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func (b *Bot) sendKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send keyboard", "err", err)
	}
}

func (b *Bot) sendPhotoBytes(chatID int64, data []byte, caption string) {
	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "result.png", Bytes: data})
	cfg.Caption = caption
	if _, err := b.api.Send(cfg); err != nil {
		b.log.Error("send photo", "err", err)
	}
}

func (b *Bot) sendPhotoURL(chatID int64, url, caption string) {
	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url))
	cfg.Caption = caption
	if _, err := b.api.Send(cfg); err != nil {
		b.log.Error("send photo", "err", err)
	}
}

// NotifyPayment tells the user how a reconciliation attempt ended. Called
// from the bot's own flows and from the webhook server.
func (b *Bot) NotifyPayment(ctx context.Context, result *service.ReconcileResult) {
	user, err := b.users.FindByID(ctx, result.UserID)
	if err != nil || user == nil {
		b.log.Error("notify payment: user lookup failed", "user_id", result.UserID, "err", err)
		return
	}
	chatID := user.TelegramID

	switch result.Status {
	case models.TxCompleted:
		if result.Granted {
			b.sendText(chatID, fmt.Sprintf("Payment received! %d credits added. Your balance is now %d.", result.Credits, result.NewBalance))
		} else {
			b.sendText(chatID, "This payment was already processed. Your credits are in place.")
		}
	case models.TxCanceled:
		b.sendText(chatID, "The payment was canceled. No credits were added.")
	case models.TxExpired:
		b.sendText(chatID, "The payment invoice expired. Send /buy to create a new one.")
	default:
		b.sendText(chatID, "The payment is still pending. I will credit you as soon as it confirms.")
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*models.User, error) {
	username, firstName, lastName := "", "", ""
	telegramID := chatID
	if from != nil {
		username = from.UserName
		firstName = from.FirstName
		lastName = from.LastName
		telegramID = from.ID
	}
	user, _, err := b.users.Ensure(ctx, telegramID, username, firstName, lastName, b.cfg.WelcomeCredits)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// downloadFile fetches a Telegram file's bytes plus a best-effort content
// type.
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, "", fmt.Errorf("file path empty")
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}

	ct := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if idx := strings.Index(ct, ";"); idx > 0 {
		ct = ct[:idx]
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(body)
		if idx := strings.Index(ct, ";"); idx > 0 {
			ct = ct[:idx]
		}
	}
	return body, ct, nil
}
