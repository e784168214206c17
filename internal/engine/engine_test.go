package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pump-monitor/internal/episode"
	"pump-monitor/internal/market"
	"pump-monitor/internal/sink"
)

func TestFilterSymbolsRestrictsToConfigured(t *testing.T) {
	active := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	out := filterSymbols(active, nil)
	if len(out) != 3 {
		t.Fatalf("expected no filtering when configured is empty, got %v", out)
	}

	out = filterSymbols(active, []string{"ETHUSDT"})
	if len(out) != 1 || out[0] != "ETHUSDT" {
		t.Fatalf("expected filtering to configured symbols, got %v", out)
	}
}

func TestSnapshotProviderIncludesScalarStateAndPhases(t *testing.T) {
	store := market.New(50, 60*time.Second)
	store.Ensure("BTCUSDT")
	store.ApplyMark("BTCUSDT", decimal.NewFromInt(100), time.Unix(0, 0))

	tracker := episode.New(60*time.Second, map[string]sink.Sink{})
	tracker.Observe("BTCUSDT", "strategy1", true, decimal.NewFromFloat(1.6),
		decimal.NewFromInt(160), decimal.NewFromInt(100), time.Unix(1, 0))

	p := &snapshotProvider{store: store, tracker: tracker, symbols: []string{"BTCUSDT"}}
	snap := p.Snapshot()

	if len(snap.Symbols) != 1 {
		t.Fatalf("expected 1 symbol snapshot, got %d", len(snap.Symbols))
	}
	s := snap.Symbols[0]
	if s.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected symbol: %s", s.Symbol)
	}
	if !s.MarkPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected mark price 100 in snapshot, got %s", s.MarkPrice)
	}
	if s.Phases["strategy1"] != "active" {
		t.Fatalf("expected strategy1 phase to be active, got %+v", s.Phases)
	}
}

func TestSnapshotProviderSkipsUnregisteredSymbols(t *testing.T) {
	store := market.New(50, 60*time.Second)
	tracker := episode.New(60*time.Second, map[string]sink.Sink{})

	p := &snapshotProvider{store: store, tracker: tracker, symbols: []string{"UNKNOWN"}}
	snap := p.Snapshot()

	if len(snap.Symbols) != 0 {
		t.Fatalf("expected no snapshot entries for an unregistered symbol, got %d", len(snap.Symbols))
	}
}
