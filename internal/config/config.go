package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// Callable APIの呼び出し元認証
	JWTSecret string

	// Firebase Cloud Messaging
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	// Change feed
	FeedChannel       string
	FeedMaxConcurrent int
	FeedPollInterval  time.Duration
	FeedBatchSize     int

	// 処理済み変更の保持日数と削除スケジュール
	ChangeRetentionDays int
	CleanupSchedule     string

	// Reminder schedules (cron形式、TimeZoneで評価する)
	SessionReminderSchedule string
	WorkoutReminderSchedule string
	TimeZone                string

	// Rate Limit (req/min)
	RateLimitCallable int

	// Webhook
	WebhookMaxBodyBytes int64

	// Logging
	LogLevel string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	if cfg.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}

	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	if cfg.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FirebaseProjectID = getEnvString("FIREBASE_PROJECT_ID", "")
	cfg.FirebaseCredentialsFile = getEnvString("FIREBASE_CREDENTIALS_FILE", "")
	cfg.FeedChannel = getEnvString("FEED_CHANNEL", "document_changes")
	cfg.FeedMaxConcurrent = getEnvInt("FEED_MAX_CONCURRENT", 10)
	cfg.FeedPollInterval = getEnvDuration("FEED_POLL_INTERVAL", time.Minute)
	cfg.FeedBatchSize = getEnvInt("FEED_BATCH_SIZE", 100)
	cfg.ChangeRetentionDays = getEnvInt("CHANGE_RETENTION_DAYS", 7)
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "30 3 * * *")
	cfg.SessionReminderSchedule = getEnvString("SESSION_REMINDER_SCHEDULE", "*/15 * * * *")
	cfg.WorkoutReminderSchedule = getEnvString("WORKOUT_REMINDER_SCHEDULE", "0 19 * * *")
	cfg.TimeZone = getEnvString("TIME_ZONE", "America/New_York")
	cfg.RateLimitCallable = getEnvInt("RATE_LIMIT_CALLABLE", 30)
	cfg.WebhookMaxBodyBytes = getEnvInt64("WEBHOOK_MAX_BODY_BYTES", 65536)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	if _, err := time.LoadLocation(cfg.TimeZone); err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", cfg.TimeZone, err)
	}

	return cfg, nil
}

// Location は通知の日付表示とリマインダーの日付境界に使うタイムゾーンを返す。
// Loadで検証済みのため、失敗時はUTCにフォールバックする。
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
