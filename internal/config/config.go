package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken string
	MySQLDSN string
	LogLevel string
	TestMode bool

	VisionBaseURL string
	VisionAPIKey  string

	GenBaseURL string
	GenAPIKey  string

	TranslateBaseURL string
	TranslateAPIKey  string

	RequestTimeout time.Duration

	HairstyleCost  int
	WelcomeCredits int
	PromoBonus     int

	PaymentCurrency string

	CryptoInvAPIKey     string
	CryptoInvMerchantID string
	CryptoInvBaseURL    string

	CardPayShopID    string
	CardPaySecretKey string
	CardPayReturnURL string

	WebhookListenAddr string
	WebhookSecret     string
	AdminUsername     string
	AdminPassword     string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		TestMode:            getBool("TEST_MODE", false),
		VisionBaseURL:       getEnv("VISION_BASE_URL", "http://localhost:8090"),
		GenBaseURL:          getEnv("GEN_BASE_URL", "https://api.kie.ai"),
		TranslateBaseURL:    getEnv("TRANSLATE_BASE_URL", "https://api-free.deepl.com"),
		RequestTimeout:      time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		HairstyleCost:       getInt("HAIRSTYLE_COST", 2),
		WelcomeCredits:      getInt("WELCOME_CREDITS", 0),
		PromoBonus:          getInt("PROMO_BONUS_CREDITS", 10),
		PaymentCurrency:     getEnv("PAYMENT_CURRENCY", "USD"),
		CryptoInvBaseURL:    getEnv("CRYPTOINV_BASE_URL", "https://api.cryptomus.com"),
		CardPayReturnURL:    getEnv("CARDPAY_RETURN_URL", ""),
		WebhookListenAddr:   getEnv("WEBHOOK_LISTEN_ADDR", ":8080"),
		AdminUsername:       getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:       getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3Region:            os.Getenv("S3_REGION"),
		S3AccessKey:         os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("S3_SECRET_KEY"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:     os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:      getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:            getEnv("S3_PREFIX", "uploads"),
		CryptoInvMerchantID: os.Getenv("CRYPTOINV_MERCHANT_ID"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.VisionAPIKey = os.Getenv("VISION_API_KEY")
	cfg.GenAPIKey = os.Getenv("GEN_API_KEY")
	cfg.TranslateAPIKey = os.Getenv("TRANSLATE_API_KEY")
	cfg.CryptoInvAPIKey = os.Getenv("CRYPTOINV_API_KEY")
	cfg.CardPayShopID = os.Getenv("CARDPAY_SHOP_ID")
	cfg.CardPaySecretKey = os.Getenv("CARDPAY_SECRET_KEY")
	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.GenAPIKey == "" {
		missing = append(missing, "GEN_API_KEY")
	}
	if cfg.VisionAPIKey == "" {
		missing = append(missing, "VISION_API_KEY")
	}
	if !cfg.TestMode {
		if cfg.CryptoInvAPIKey == "" || cfg.CryptoInvMerchantID == "" {
			missing = append(missing, "CRYPTOINV_API_KEY/CRYPTOINV_MERCHANT_ID")
		}
		if cfg.CardPayShopID == "" || cfg.CardPaySecretKey == "" {
			missing = append(missing, "CARDPAY_SHOP_ID/CARDPAY_SECRET_KEY")
		}
	}
	if cfg.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if cfg.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if cfg.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off the process environment is fine in containers.
	return nil
}
