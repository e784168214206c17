package diag

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pump-monitor/internal/config"
)

// Server runs the read-only diagnostics HTTP/WebSocket surface.
type Server struct {
	cfg      config.DiagnosticsConfig
	provider SnapshotProvider
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds a Server bound to cfg.Port, serving snapshots from
// provider and streaming episodes pushed to the returned hub.
func NewServer(cfg config.DiagnosticsConfig, provider SnapshotProvider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	hub := NewHub(logger)
	handlers := NewHandlers(provider, cfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handlers.HandleHealth)
	mux.HandleFunc("/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		provider: provider,
		hub:      hub,
		handlers: handlers,
		server:   httpServer,
		logger:   logger.With("component", "diag-server"),
	}
}

// Hub exposes the broadcast hub so the engine can push finalized episodes.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the hub and blocks serving HTTP until the server is stopped.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("diagnostics server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("diagnostics server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info("stopping diagnostics server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
