// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the watcher — symbol metadata,
// order book levels, and the decoded message/event shapes produced by the
// transport layer and consumed by ingestion and detection. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Channel identifies which exchange feed a decoded message came from.
type Channel string

const (
	ChannelTicker Channel = "ticker"
	ChannelMark   Channel = "markPrice"
	ChannelDepth  Channel = "depth"
)

// ExchangeMessage is the decoded, channel-tagged unit the transport layer
// hands to the ingestion dispatcher. Payload is channel-specific: a Ticker,
// MarkPrice, or DepthUpdate value.
type ExchangeMessage struct {
	Channel Channel
	Symbol  string
	Payload interface{}
	Ts      time.Time
}

// Ticker carries the latest traded price for a symbol.
type Ticker struct {
	Symbol    string
	LastPrice decimal.Decimal
	Ts        time.Time
}

// MarkPrice carries the latest venue-computed mark/fair price for a symbol.
// FairPrice aliases MarkPrice when the venue does not distinguish the two.
type MarkPrice struct {
	Symbol     string
	MarkPrice  decimal.Decimal
	FairPrice  decimal.Decimal
	Ts         time.Time
}

// PriceLevel is a single bid or ask level in the order book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// DepthUpdate is a full L2 snapshot for a symbol, as delivered by the depth
// channel. The store truncates to max_levels and replaces the prior
// snapshot wholesale.
type DepthUpdate struct {
	Symbol string
	Bids   []PriceLevel // descending by price
	Asks   []PriceLevel // ascending by price
	Ts     time.Time
}

// OrderbookSnapshot is the store's retained view of one symbol's depth,
// truncated to the configured level cap. Mid and SpreadPct are computed
// once on ingest and cached because detection reads them repeatedly.
type OrderbookSnapshot struct {
	Bids      []PriceLevel
	Asks      []PriceLevel
	Mid       decimal.Decimal
	SpreadPct decimal.Decimal
	Valid     bool // false if either side was empty when the snapshot was built
	Ts        time.Time
}

// HistorySample is one (timestamp, last, mark) point retained in a symbol's
// rolling history window.
type HistorySample struct {
	Ts   time.Time
	Last decimal.Decimal
	Mark decimal.Decimal
}

// Tick is emitted by the ingestion dispatcher after any scalar update on a
// symbol. Detection reads the symbol's current store snapshot when it
// receives one; the tick itself carries no payload beyond identity + time.
type Tick struct {
	Symbol string
	Ts     time.Time
}

// EpisodeRecord is the durable payload handed to a sink once a strategy's
// predicate transitions from true back to false for a symbol.
type EpisodeRecord struct {
	Symbol     string
	Strategy   string
	StartAt    time.Time
	EndAt      time.Time
	Duration   time.Duration
	PeakRatio  decimal.Decimal
	PeakLast   decimal.Decimal
	PeakMark   decimal.Decimal
}

// ExchangeSymbol is one entry of the REST discovery response.
type ExchangeSymbol struct {
	Symbol string
	Status string // "TRADING" means active
}

func (s ExchangeSymbol) IsActive() bool {
	return s.Status == "TRADING"
}
