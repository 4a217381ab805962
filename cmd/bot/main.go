package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/visagelab/visagebot/internal/config"
	"github.com/visagelab/visagebot/internal/database"
	"github.com/visagelab/visagebot/internal/genimage"
	"github.com/visagelab/visagebot/internal/metrics"
	"github.com/visagelab/visagebot/internal/payments"
	"github.com/visagelab/visagebot/internal/payments/cardpay"
	"github.com/visagelab/visagebot/internal/payments/cryptoinv"
	"github.com/visagelab/visagebot/internal/repository"
	"github.com/visagelab/visagebot/internal/service"
	"github.com/visagelab/visagebot/internal/storage"
	"github.com/visagelab/visagebot/internal/telegram"
	"github.com/visagelab/visagebot/internal/translate"
	"github.com/visagelab/visagebot/internal/vision"
	"github.com/visagelab/visagebot/internal/webhook"
	"github.com/visagelab/visagebot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)
	m := metrics.Registry("visagebot")

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	visionClient := vision.NewClient(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.RequestTimeout, logr)
	genClient := genimage.NewClient(cfg.GenBaseURL, cfg.GenAPIKey, cfg.RequestTimeout, logr)
	translateClient := translate.NewClient(cfg.TranslateBaseURL, cfg.TranslateAPIKey, cfg.RequestTimeout, logr)

	userRepo := repository.NewUserRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	promoRepo := repository.NewPromoRepository(db)
	featureLogRepo := repository.NewFeatureLogRepository(db)

	providers := payments.NewRegistry(
		cryptoinv.NewClient(cfg.CryptoInvMerchantID, cfg.CryptoInvAPIKey, cfg.CryptoInvBaseURL, cfg.RequestTimeout, logr),
		cardpay.NewClient(cfg.CardPayShopID, cfg.CardPaySecretKey, cfg.CardPayReturnURL, cfg.RequestTimeout, logr),
	)

	userService := service.NewUserService(userRepo)
	ledgerService := service.NewLedgerService(ledgerRepo, m)
	packageService := service.NewPackageService(cfg, packageRepo)
	promoService := service.NewPromoService(promoRepo)
	analysisService := service.NewAnalysisService(logr, visionClient, featureLogRepo, m)
	editingService := service.NewEditingService(logr, genClient, translateClient, featureLogRepo, m)
	hairstyleService := service.NewHairstyleService(logr, genClient, ledgerService, featureLogRepo, cfg.HairstyleCost, m)
	purchaseService := service.NewPurchaseService(txRepo, packageService, providers)
	reconciler := service.NewReconciler(logr, txRepo, packageService, providers, m)

	if err := packageService.EnsureDefaults(ctx); err != nil {
		log.Fatalf("ensure default packages: %v", err)
	}

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("storage uploader: %v", err)
	}

	bot := telegram.NewBot(cfg, botAPI, logr, userService, analysisService, editingService, hairstyleService, purchaseService, reconciler, promoService, ledgerService, uploader, m)

	webhookServer := webhook.NewServer(
		cfg.WebhookListenAddr, cfg.WebhookSecret, cfg.AdminUsername, cfg.AdminPassword,
		logr, reconciler, bot, userService, packageService, promoService, ledgerService, botAPI,
	)
	go func() {
		if err := webhookServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("webhook server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
