package diag

import (
	"github.com/shopspring/decimal"
)

// SnapshotProvider is implemented by whatever owns live state the
// diagnostics surface reports on — the watcher's engine, in production.
type SnapshotProvider interface {
	Snapshot() Snapshot
}

// Snapshot is the JSON payload for /snapshot and for the initial message
// sent to a new WebSocket client.
type Snapshot struct {
	Symbols []SymbolSnapshot `json:"symbols"`
}

// SymbolSnapshot is one symbol's latest scalar state plus its current
// episode phase per strategy.
type SymbolSnapshot struct {
	Symbol    string          `json:"symbol"`
	LastPrice decimal.Decimal `json:"last_price,omitempty"`
	MarkPrice decimal.Decimal `json:"mark_price,omitempty"`
	FairPrice decimal.Decimal `json:"fair_price,omitempty"`
	HasDepth  bool            `json:"has_depth"`
	Phases    map[string]string `json:"phases,omitempty"`
}

