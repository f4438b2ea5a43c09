// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	BotToken         string        `env:"BOT_TOKEN,required"`
	WebhookURL       string        `env:"WEBHOOK_URL"`
	ServerPort       string        `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabasePath     string        `env:"DATABASE_PATH" envDefault:"mediabot.db"`
	ScratchPath      string        `env:"SCRATCH_PATH" envDefault:"/tmp/media-fetch"`
	YtdlpPath        string        `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	RateLimitQuota   int           `env:"RATE_LIMIT_QUOTA" envDefault:"3"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	MaxDuration      time.Duration `env:"MAX_DURATION" envDefault:"1h"`
	ProgressInterval time.Duration `env:"PROGRESS_INTERVAL" envDefault:"5s"`
	DownloadTimeout  time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"30m"`
	ProbeTimeout     time.Duration `env:"PROBE_TIMEOUT" envDefault:"30s"`
	SubmitTimeout    time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"10s"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	logLevel := strings.ToLower(c.LogLevel)
	isValidLevel := false
	for _, level := range validLogLevels {
		if logLevel == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("invalid log level %q, must be one of: %v", c.LogLevel, validLogLevels)
	}

	// Validate scratch path
	if c.ScratchPath == "" {
		return fmt.Errorf("SCRATCH_PATH cannot be empty")
	}

	cleanPath := filepath.Clean(c.ScratchPath)
	if !filepath.IsAbs(cleanPath) {
		return fmt.Errorf("SCRATCH_PATH must be an absolute path, got: %s", c.ScratchPath)
	}
	c.ScratchPath = cleanPath

	if c.RateLimitQuota <= 0 {
		return fmt.Errorf("RATE_LIMIT_QUOTA must be positive, got: %d", c.RateLimitQuota)
	}

	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got: %s", c.RateLimitWindow)
	}

	if c.ProgressInterval <= 0 {
		return fmt.Errorf("PROGRESS_INTERVAL must be positive, got: %s", c.ProgressInterval)
	}

	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("WEBHOOK_URL must use https, got: %s", c.WebhookURL)
	}

	return nil
}
