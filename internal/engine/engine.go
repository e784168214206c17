// Package engine is the central orchestrator of the pump anomaly watcher.
//
// It wires together all subsystems:
//
//  1. DiscoveryClient resolves the active symbol universe at startup.
//  2. Feed streams ticker/markPrice/depth over one combined WebSocket
//     connection, reconnecting with backoff on drop.
//  3. Dispatcher applies decoded messages to the Market Store and emits
//     coalesced ticks.
//  4. Detection Engine evaluates the enabled strategies on every tick.
//  5. Episode Tracker runs the Idle/Active/Cooldown state machine and
//     forwards finalized records to sinks (and, if enabled, diagnostics).
//
// Lifecycle: New() -> Start() -> [runs until SIGINT] -> Stop(). Stop cancels
// the root context, waits on one WaitGroup covering every stage goroutine,
// then closes resources.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pump-monitor/internal/config"
	"pump-monitor/internal/detect"
	"pump-monitor/internal/diag"
	"pump-monitor/internal/episode"
	"pump-monitor/internal/exchange"
	"pump-monitor/internal/ingest"
	"pump-monitor/internal/market"
	"pump-monitor/internal/sink"
)

// Engine orchestrates discovery, the market feed, ingestion, detection,
// the episode tracker, and (optionally) the diagnostics server.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	discovery *exchange.DiscoveryClient
	feed      *exchange.Feed
	store     *market.Store
	dispatcher *ingest.Dispatcher
	detector  *detect.Engine
	tracker   *episode.Tracker
	sinks     []sink.Sink
	diagSrv   *diag.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New resolves the symbol universe, builds every pipeline stage, and
// returns a ready-to-Start Engine. A failed discovery call, after its
// retry budget, is returned as a fatal error.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	discovery := exchange.NewDiscoveryClient(cfg.API.RESTBaseURL)

	discoverCtx, discoverCancel := context.WithTimeout(ctx, 30*time.Second)
	active, err := discovery.DiscoverActive(discoverCtx, cfg.General.DiscoveryRetries, cfg.General.DiscoveryRetryWait)
	discoverCancel()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("symbol discovery: %w", err)
	}

	symbols := filterSymbols(active, cfg.General.Symbols)
	if len(symbols) == 0 {
		cancel()
		return nil, fmt.Errorf("symbol discovery: no active symbols registered")
	}

	store := market.New(cfg.Orderbook.MaxLevels, cfg.MaxHistoryWindow())
	for _, sym := range symbols {
		store.Ensure(sym)
	}

	feed := exchange.NewFeed(cfg.API.WSBaseURL, symbols, logger)
	dispatcher := ingest.NewDispatcher(store, logger)

	sinks, sinkMap, err := buildSinks(cfg, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	tracker := episode.New(time.Duration(cfg.Cooldowns.PerSymbolSeconds)*time.Second, sinkMap)

	var diagSrv *diag.Server
	if cfg.Diagnostics.Enabled {
		provider := &snapshotProvider{store: store, tracker: tracker, symbols: symbols}
		diagSrv = diag.NewServer(cfg.Diagnostics, provider, logger)
		for strategy, s := range sinkMap {
			combined := sink.NewMulti(s, diag.NewBroadcastSink(diagSrv.Hub()))
			sinkMap[strategy] = combined
		}
	}

	predicates := buildPredicates(cfg)
	detector := detect.New(store, tracker, predicates, logger)

	return &Engine{
		cfg:        cfg,
		logger:     logger.With("component", "engine"),
		discovery:  discovery,
		feed:       feed,
		store:      store,
		dispatcher: dispatcher,
		detector:   detector,
		tracker:    tracker,
		sinks:      sinks,
		diagSrv:    diagSrv,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func filterSymbols(active, configured []string) []string {
	if len(configured) == 0 {
		return active
	}
	allowed := make(map[string]bool, len(configured))
	for _, s := range configured {
		allowed[s] = true
	}
	out := make([]string, 0, len(configured))
	for _, s := range active {
		if allowed[s] {
			out = append(out, s)
		}
	}
	return out
}

func buildSinks(cfg config.Config, logger *slog.Logger) ([]sink.Sink, map[string]sink.Sink, error) {
	names := []string{"strategy1", "strategy2", "strategy3", "strategy4"}
	all := make([]sink.Sink, 0, len(names))
	byName := make(map[string]sink.Sink, len(names))

	for _, name := range names {
		fs, err := sink.NewFileSink(cfg.General.LogDir, name, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("build sink for %s: %w", name, err)
		}
		all = append(all, fs)
		byName[name] = fs
	}
	return all, byName, nil
}

func buildPredicates(cfg config.Config) []detect.Predicate {
	var preds []detect.Predicate
	if cfg.Strategy1.Enabled {
		preds = append(preds, detect.NewStrategy1(cfg.Strategy1))
	}
	if cfg.Strategy2.Enabled {
		preds = append(preds, detect.NewStrategy2(cfg.Strategy2))
	}
	if cfg.Strategy3.Enabled {
		preds = append(preds, detect.NewStrategy3(cfg.Strategy3))
	}
	if cfg.Strategy4.Enabled {
		preds = append(preds, detect.NewStrategy4(cfg.Strategy4, cfg.Orderbook))
	}
	return preds
}

// Start launches all background goroutines: the market feed, the
// ingestion dispatcher, the detection engine, and (if enabled) the
// diagnostics server.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.feed.Run(e.ctx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatcher.Run(e.ctx, e.feed.Messages())
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.detector.Run(e.ctx, e.dispatcher.Ticks())
	}()

	if e.diagSrv != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.diagSrv.Start(); err != nil {
				e.logger.Error("diagnostics server error", "error", err)
			}
		}()
	}

	e.logger.Info("engine started")
	return nil
}

// Stop cancels the root context, waits for every goroutine to exit,
// finalizes any still-Active episodes with end_at = now, and closes sinks.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()

	if e.diagSrv != nil {
		if err := e.diagSrv.Stop(); err != nil {
			e.logger.Error("failed to stop diagnostics server", "error", err)
		}
	}

	e.wg.Wait()

	e.tracker.Shutdown(time.Now())

	for _, s := range e.sinks {
		if err := s.Close(); err != nil {
			e.logger.Error("failed to close sink", "error", err)
		}
	}

	e.logger.Info("shutdown complete")
}

// snapshotProvider adapts the market store and episode tracker to
// diag.SnapshotProvider.
type snapshotProvider struct {
	store   *market.Store
	tracker *episode.Tracker
	symbols []string
}

func (p *snapshotProvider) Snapshot() diag.Snapshot {
	out := diag.Snapshot{Symbols: make([]diag.SymbolSnapshot, 0, len(p.symbols))}
	for _, sym := range p.symbols {
		snap, ok := p.store.Snapshot(sym)
		if !ok {
			continue
		}
		out.Symbols = append(out.Symbols, diag.SymbolSnapshot{
			Symbol:    sym,
			LastPrice: snap.LastPrice,
			MarkPrice: snap.MarkPrice,
			FairPrice: snap.FairPrice,
			HasDepth:  snap.HasDepth,
			Phases:    p.tracker.Phases(sym),
		})
	}
	return out
}
