package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Telegram
	TelegramToken          string  `env:"TELEGRAM_BOT_TOKEN,required"`
	TelegramWebhookURL     string  `env:"TELEGRAM_WEBHOOK_URL"` // Empty means long polling
	TelegramWebhookSecret  string  `env:"TELEGRAM_WEBHOOK_SECRET"`
	TelegramAllowedUserIDs []int64 `env:"TELEGRAM_ALLOWED_USER_IDS" envSeparator:","`

	// Database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"./data/gmailbot.db"`

	// Gmail
	GmailAccounts         Accounts `env:"GMAIL_ACCOUNTS_JSON,required"`
	GmailClientSecretPath string   `env:"GMAIL_OAUTH_CLIENT_SECRET_JSON,required"`
	GmailWatchTopic       string   `env:"GMAIL_WATCH_TOPIC,required"`
	GmailWatchLabelIDs    []string `env:"GMAIL_WATCH_LABEL_IDS" envSeparator:"," envDefault:"INBOX"`

	// Pub/Sub
	GoogleCloudProject    string `env:"GOOGLE_CLOUD_PROJECT,required"`
	PubSubSubscription    string `env:"PUBSUB_SUBSCRIPTION,required"`
	GoogleCredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	PubSubMaxOutstanding  int    `env:"PUBSUB_MAX_OUTSTANDING" envDefault:"4"`

	// OpenAI
	OpenAIAPIKey                string        `env:"OPENAI_API_KEY,required"`
	OpenAIModel                 string        `env:"OPENAI_MODEL" envDefault:"gpt-5-mini"`
	OpenAIBaseURL               string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIPriceInputPer1M       float64       `env:"OPENAI_PRICE_INPUT_PER_1M,required"`
	OpenAIPriceCachedInputPer1M float64       `env:"OPENAI_PRICE_CACHED_INPUT_PER_1M,required"`
	OpenAIPriceOutputPer1M      float64       `env:"OPENAI_PRICE_OUTPUT_PER_1M,required"`
	LLMMaxInputTokens           int           `env:"LLM_MAX_INPUT_TOKENS" envDefault:"12000"`
	LLMLowConfidenceThreshold   float64       `env:"LLM_LOW_CONFIDENCE_THRESHOLD" envDefault:"0.8"`
	LLMTimeout                  time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	// Background loops
	WatchInterval     time.Duration `env:"WATCH_INTERVAL" envDefault:"15m"`
	WatchRenewWindow  time.Duration `env:"WATCH_RENEW_WINDOW" envDefault:"24h"`
	AuthBackoffBase   time.Duration `env:"AUTH_BACKOFF_BASE" envDefault:"300s"`
	AuthBackoffMax    time.Duration `env:"AUTH_BACKOFF_MAX" envDefault:"3600s"`
	StreamBackoffBase time.Duration `env:"STREAM_BACKOFF_BASE" envDefault:"2s"`
	StreamBackoffMax  time.Duration `env:"STREAM_BACKOFF_MAX" envDefault:"60s"`

	// HTTP server for webhook, metrics and health
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// AccountConfig a Gmail account from GMAIL_ACCOUNTS_JSON
type AccountConfig struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
}

// Accounts list of configured accounts, parsed from a JSON array
type Accounts []AccountConfig

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Accounts) UnmarshalText(text []byte) error {
	var items []AccountConfig
	if err := json.Unmarshal(text, &items); err != nil {
		return fmt.Errorf("GMAIL_ACCOUNTS_JSON must be valid JSON: %w", err)
	}
	if len(items) == 0 {
		return errors.New("GMAIL_ACCOUNTS_JSON must be a non-empty JSON array")
	}

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		item.Email = strings.TrimSpace(item.Email)
		if item.Email == "" || item.RefreshToken == "" {
			return fmt.Errorf("account %d must include email and refresh_token", i)
		}
		key := strings.ToLower(item.Email)
		if seen[key] {
			return fmt.Errorf("duplicate account %s", item.Email)
		}
		seen[key] = true
		items[i] = item
	}

	*a = items
	return nil
}

// WebhookEnabled returns true if Telegram updates arrive via webhook
func (c *Config) WebhookEnabled() bool {
	return c.TelegramWebhookURL != ""
}

// UsesPostgres returns true if DATABASE_URL points to PostgreSQL
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges that env tags cannot express
func (c *Config) Validate() error {
	if c.LLMLowConfidenceThreshold < 0 || c.LLMLowConfidenceThreshold > 1 {
		return fmt.Errorf("LLM_LOW_CONFIDENCE_THRESHOLD must be between 0 and 1, got %v", c.LLMLowConfidenceThreshold)
	}
	if c.LLMMaxInputTokens <= 0 {
		return fmt.Errorf("LLM_MAX_INPUT_TOKENS must be positive, got %d", c.LLMMaxInputTokens)
	}
	if len(c.GmailWatchLabelIDs) == 0 || strings.TrimSpace(c.GmailWatchLabelIDs[0]) == "" {
		return errors.New("GMAIL_WATCH_LABEL_IDS cannot be empty")
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("WATCH_INTERVAL must be positive, got %s", c.WatchInterval)
	}
	if c.WatchRenewWindow <= 0 {
		return fmt.Errorf("WATCH_RENEW_WINDOW must be positive, got %s", c.WatchRenewWindow)
	}
	if c.AuthBackoffBase <= 0 || c.AuthBackoffBase > c.AuthBackoffMax {
		return fmt.Errorf("AUTH_BACKOFF_BASE must be positive and not exceed AUTH_BACKOFF_MAX")
	}
	if c.StreamBackoffBase <= 0 || c.StreamBackoffBase > c.StreamBackoffMax {
		return fmt.Errorf("STREAM_BACKOFF_BASE must be positive and not exceed STREAM_BACKOFF_MAX")
	}
	if c.PubSubMaxOutstanding <= 0 {
		return fmt.Errorf("PUBSUB_MAX_OUTSTANDING must be positive, got %d", c.PubSubMaxOutstanding)
	}
	return nil
}

// IsUserAllowed reports whether a Telegram user may control the bot
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.TelegramAllowedUserIDs) == 0 {
		return true
	}
	for _, id := range c.TelegramAllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
