package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL   string
	MigrationsDir string

	RedisURL         string
	AsynqQueue       string
	AsynqConcurrency int
	TurnMaxRetry     int

	WebhookToken string

	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string

	CompletionAPIKey  string
	CompletionBaseURL string
	CompletionModel   string

	TranscriptionURL      string
	TranscriptionKey      string
	TranscriptionLanguage string

	JWTAccessSecret string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	EmailEnabled bool

	CORSAllowAll bool
	CORSOrigins  []string

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		MigrationsDir:         getEnv("MIGRATIONS_DIR", "migrations"),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AsynqQueue:            getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:      getEnvInt("ASYNQ_CONCURRENCY", 10),
		TurnMaxRetry:          getEnvInt("TURN_MAX_RETRY", 3),
		WebhookToken:          getEnv("WEBHOOK_TOKEN", ""),
		WhatsAppURL:           getEnv("WHATSAPP_API_URL", ""),
		WhatsAppKey:           getEnv("WHATSAPP_API_KEY", ""),
		WhatsAppDeviceID:      getEnv("WHATSAPP_DEVICE_ID", ""),
		CompletionAPIKey:      getEnv("COMPLETION_API_KEY", ""),
		CompletionBaseURL:     getEnv("COMPLETION_BASE_URL", ""),
		CompletionModel:       getEnv("COMPLETION_MODEL", ""),
		TranscriptionURL:      getEnv("TRANSCRIPTION_API_URL", ""),
		TranscriptionKey:      getEnv("TRANSCRIPTION_API_KEY", ""),
		TranscriptionLanguage: getEnv("TRANSCRIPTION_LANGUAGE", "pt"),
		JWTAccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
		SMTPHost:              smtpHost,
		SMTPPort:              getEnvInt("SMTP_PORT", 587),
		SMTPUser:              getEnv("SMTP_USER", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:              getEnv("SMTP_FROM", ""),
		EmailEnabled:          emailEnabled && smtpHost != "",
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		ShutdownTimeout:       getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WebhookToken == "" {
		return nil, fmt.Errorf("WEBHOOK_TOKEN is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.SMTPFrom == "" {
		return nil, fmt.Errorf("SMTP_FROM is required when email is enabled")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
