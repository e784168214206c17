// Pump anomaly watcher — monitors a crypto derivatives venue's futures
// market in real time and detects transient deviations of last price
// above mark/fair price, emitting durable per-strategy episode records.
//
// Architecture:
//
//	main.go                 — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	internal/engine         — orchestrator: wires discovery -> feed -> ingest -> detect -> episode -> sink
//	internal/exchange       — REST symbol discovery + WebSocket ticker/markPrice/depth feed
//	internal/market         — concurrent per-symbol market-state store
//	internal/ingest         — dispatches decoded messages into the store, emits ticks
//	internal/detect         — the four pump-detection predicates
//	internal/episode        — per-(symbol, strategy) episode state machine
//	internal/sink           — durable episode log sinks
//	internal/diag           — read-only diagnostics HTTP/WebSocket surface
package main

import (
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"pump-monitor/internal/config"
	"pump-monitor/internal/engine"
)

func main() {
	cfgPath := "configs/config.toml"
	if p := os.Getenv("PUMP_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("pump anomaly watcher started",
		"symbols", len(cfg.General.Symbols),
		"log_dir", cfg.General.LogDir,
		"diagnostics", cfg.Diagnostics.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
