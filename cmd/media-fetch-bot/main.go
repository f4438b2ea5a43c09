package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"media-fetch-bot/internal/bot"
	"media-fetch-bot/internal/config"
	"media-fetch-bot/internal/database"
	"media-fetch-bot/internal/downloader"
	"media-fetch-bot/internal/ratelimit"
	"media-fetch-bot/internal/telegram"
	"media-fetch-bot/internal/web"
	"media-fetch-bot/internal/ytdlp"
)

const historyRetention = 60 * 24 * time.Hour

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup structured logging
	setupLogging(cfg.LogLevel)

	slog.Info("Starting media-fetch-bot", "version", "1.0.0")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	// Initialize bot API client and verify the token
	client := telegram.New(cfg.BotToken)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if info, err := client.GetMe(ctx); err != nil {
		slog.Warn("Bot token validation failed - continuing anyway", "error", err)
	} else {
		slog.Info("Authenticated with the bot API", "username", info.Username)
	}
	cancel()

	// Initialize download engine and verify the binary is reachable
	engine := ytdlp.New(cfg.YtdlpPath, cfg.ProbeTimeout)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	if version, err := engine.Version(ctx); err != nil {
		slog.Warn("Download engine check failed - continuing anyway",
			"path", cfg.YtdlpPath, "error", err)
	} else {
		slog.Info("Download engine ready", "version", version)
	}
	cancel()

	limiter := ratelimit.New(cfg.RateLimitQuota, cfg.RateLimitWindow)

	orchestrator := downloader.NewOrchestrator(engine, downloader.Config{
		ScratchRoot:      cfg.ScratchPath,
		MaxDuration:      cfg.MaxDuration,
		DownloadTimeout:  cfg.DownloadTimeout,
		ProgressInterval: cfg.ProgressInterval,
	})

	worker := bot.NewWorker(client, engine, orchestrator, limiter, db, cfg)

	server := web.NewServer(db, worker, cfg)

	return runServer(server, worker, client, db, cfg)
}

func runServer(server *web.Server, worker *bot.Worker, client telegram.BotClient, db *database.DB, cfg *config.Config) error {
	// Create main context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start bot worker in goroutine
	go worker.Start(ctx)

	// Sweep leftover scratch directories from a previous session, then
	// keep sweeping periodically
	janitor := downloader.NewJanitor(cfg.ScratchPath, cfg.DownloadTimeout)
	if removed, err := janitor.Sweep(); err != nil {
		slog.Error("Failed to sweep scratch directories", "error", err)
	} else if removed > 0 {
		slog.Info("Swept leftover scratch directories", "count", removed)
	}
	go janitor.Run(ctx, time.Hour)

	// Start history cleanup routine (runs daily)
	go startHistoryCleanup(ctx, db)

	// Register the webhook when a public URL is configured
	if cfg.WebhookURL != "" {
		webhookURL := strings.TrimSuffix(cfg.WebhookURL, "/") + "/webhook"
		registerCtx, registerCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := client.SetWebhook(registerCtx, webhookURL); err != nil {
			slog.Error("Failed to register webhook", "url", webhookURL, "error", err)
		} else {
			slog.Info("Webhook registered", "url", webhookURL)
		}
		registerCancel()
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	}

	// Cancel context to stop the bot worker and background routines
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// setupLogging configures structured logging based on the log level
func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// startHistoryCleanup runs a goroutine that cleans up old request records periodically
func startHistoryCleanup(ctx context.Context, db *database.DB) {
	ticker := time.NewTicker(24 * time.Hour) // Run daily
	defer ticker.Stop()

	// Run cleanup immediately on startup
	cleanupOldRequests(db)

	for {
		select {
		case <-ctx.Done():
			slog.Info("History cleanup routine shutting down")
			return
		case <-ticker.C:
			cleanupOldRequests(db)
		}
	}
}

// cleanupOldRequests removes request records older than the retention period
func cleanupOldRequests(db *database.DB) {
	slog.Info("Running history cleanup", "retention_days", int(historyRetention.Hours()/24))

	if err := db.DeleteOldRequests(historyRetention); err != nil {
		slog.Error("Failed to cleanup old request records", "error", err)
		return
	}

	slog.Info("History cleanup completed")
}
