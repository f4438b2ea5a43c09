// Package web provides the HTTP server bridging webhook delivery to the bot worker
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"media-fetch-bot/internal/config"
	"media-fetch-bot/internal/database"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	handlers *Handlers
	logger   *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(db *database.DB, worker UpdateSink, cfg *config.Config) *Server {
	handlers := NewHandlers(db, worker, cfg)

	mux := http.NewServeMux()

	// Routes
	mux.HandleFunc("GET /", handlers.Root)
	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("POST /webhook", handlers.Webhook)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		server:   server,
		handlers: handlers,
		logger:   slog.Default(),
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
