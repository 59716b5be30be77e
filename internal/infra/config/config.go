// Package config provides application-wide configuration loaded from env vars.
// All fields have safe defaults so the binary runs locally without any env setup.
// A .env file in the working directory is applied first when present; variables
// already set in the process environment take precedence over it.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration for agencyhub.
type Config struct {
	// HTTP
	HTTPHost string // HTTP_HOST — default: "0.0.0.0"
	HTTPPort int    // HTTP_PORT — default: 8080

	// Storage
	DBPath string // DB_PATH — default: "./data/agencyhub.db"

	// Logging
	LogLevel  string // LOG_LEVEL — default: "info"
	LogFormat string // LOG_FORMAT — "json" or "console", default: "json"
	LogFile   string // LOG_FILE — empty writes to stderr

	// Rate limiting on public endpoints
	RateLimitRPS   int // RATE_LIMIT_RPS — default: 5
	RateLimitBurst int // RATE_LIMIT_BURST — default: 10

	// Background jobs (cron specs)
	VisitFlushSchedule        string // VISIT_FLUSH_SCHEDULE — default: "@every 10s"
	SubscriptionSweepSchedule string // SUBSCRIPTION_SWEEP_SCHEDULE — default: "@every 1h"

	// Payments
	RazorpayBaseURL       string // RZP_BASE_URL
	RazorpayKeyID         string // RZP_KEY_ID
	RazorpayKeySecret     string // RZP_KEY_SECRET
	RazorpayWebhookSecret string // RZP_WEBHOOK_SECRET

	// Outbound mail
	SMTPHost     string // SMTP_HOST — empty disables delivery
	SMTPPort     int    // SMTP_PORT — default: 587
	SMTPUsername string // SMTP_USERNAME
	SMTPPassword string // SMTP_PASSWORD
	SMTPFrom     string // SMTP_FROM

	AppBaseURL string // APP_BASE_URL — used in invitation links
}

const (
	envKeyHTTPHost                  = "HTTP_HOST"
	envKeyHTTPPort                  = "HTTP_PORT"
	envKeyDBPath                    = "DB_PATH"
	envKeyLogLevel                  = "LOG_LEVEL"
	envKeyLogFormat                 = "LOG_FORMAT"
	envKeyLogFile                   = "LOG_FILE"
	envKeyRateLimitRPS              = "RATE_LIMIT_RPS"
	envKeyRateLimitBurst            = "RATE_LIMIT_BURST"
	envKeyVisitFlushSchedule        = "VISIT_FLUSH_SCHEDULE"
	envKeySubscriptionSweepSchedule = "SUBSCRIPTION_SWEEP_SCHEDULE"
	envKeyRazorpayBaseURL           = "RZP_BASE_URL"
	envKeyRazorpayKeyID             = "RZP_KEY_ID"
	envKeyRazorpayKeySecret         = "RZP_KEY_SECRET"
	envKeyRazorpayWebhookSecret     = "RZP_WEBHOOK_SECRET"
	envKeySMTPHost                  = "SMTP_HOST"
	envKeySMTPPort                  = "SMTP_PORT"
	envKeySMTPUsername              = "SMTP_USERNAME"
	envKeySMTPPassword              = "SMTP_PASSWORD"
	envKeySMTPFrom                  = "SMTP_FROM"
	envKeyAppBaseURL                = "APP_BASE_URL"
)

// Load reads configuration from environment variables, applying defaults for missing values.
func Load() Config {
	// godotenv never overrides variables that are already set.
	_ = godotenv.Load() //nolint:errcheck // a missing .env is the normal case

	return Config{
		HTTPHost:                  envOr(envKeyHTTPHost, "0.0.0.0"),
		HTTPPort:                  envIntOr(envKeyHTTPPort, 8080),
		DBPath:                    envOr(envKeyDBPath, "./data/agencyhub.db"),
		LogLevel:                  envOr(envKeyLogLevel, "info"),
		LogFormat:                 envOr(envKeyLogFormat, "json"),
		LogFile:                   os.Getenv(envKeyLogFile),
		RateLimitRPS:              envIntOr(envKeyRateLimitRPS, 5),
		RateLimitBurst:            envIntOr(envKeyRateLimitBurst, 10),
		VisitFlushSchedule:        envOr(envKeyVisitFlushSchedule, "@every 10s"),
		SubscriptionSweepSchedule: envOr(envKeySubscriptionSweepSchedule, "@every 1h"),
		RazorpayBaseURL:           envOr(envKeyRazorpayBaseURL, "https://api.razorpay.com"),
		RazorpayKeyID:             os.Getenv(envKeyRazorpayKeyID),
		RazorpayKeySecret:         os.Getenv(envKeyRazorpayKeySecret),
		RazorpayWebhookSecret:     os.Getenv(envKeyRazorpayWebhookSecret),
		SMTPHost:                  os.Getenv(envKeySMTPHost),
		SMTPPort:                  envIntOr(envKeySMTPPort, 587),
		SMTPUsername:              os.Getenv(envKeySMTPUsername),
		SMTPPassword:              os.Getenv(envKeySMTPPassword),
		SMTPFrom:                  envOr(envKeySMTPFrom, "no-reply@agencyhub.local"),
		AppBaseURL:                envOr(envKeyAppBaseURL, "http://localhost:3000"),
	}
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntOr parses key as an int, returning fallback when unset or malformed.
func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
