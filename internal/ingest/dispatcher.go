// Package ingest routes decoded exchange messages into the market store
// and emits coalesced ticks for the detection engine.
package ingest

import (
	"context"
	"log/slog"

	"pump-monitor/internal/market"
	"pump-monitor/pkg/types"
)

// Dispatcher consumes decoded ExchangeMessage values, applies them to the
// market store, and emits one Tick per ticker or mark update for the
// detection engine to react to (depth updates emit none). Pending ticks are coalesced per symbol in a TickQueue so a slow
// consumer causes backpressure, never a dropped symbol.
type Dispatcher struct {
	store  *market.Store
	ticks  *types.TickQueue
	logger *slog.Logger
}

// NewDispatcher builds a Dispatcher writing into store.
func NewDispatcher(store *market.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:  store,
		ticks:  types.NewTickQueue(),
		logger: logger,
	}
}

// Ticks returns the coalescing queue of per-symbol update notifications.
func (d *Dispatcher) Ticks() *types.TickQueue {
	return d.ticks
}

// Run drains in until ctx is cancelled or in is closed, closing the tick
// queue on exit so a consumer blocked in TickQueue.Next can return.
func (d *Dispatcher) Run(ctx context.Context, in <-chan types.ExchangeMessage) {
	defer d.ticks.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			d.route(msg)
		}
	}
}

func (d *Dispatcher) route(msg types.ExchangeMessage) {
	if !d.store.Has(msg.Symbol) {
		return
	}

	switch msg.Channel {
	case types.ChannelTicker:
		t, ok := msg.Payload.(types.Ticker)
		if !ok {
			return
		}
		d.store.ApplyTicker(t.Symbol, t.LastPrice, t.Ts)

	case types.ChannelMark:
		m, ok := msg.Payload.(types.MarkPrice)
		if !ok {
			return
		}
		d.store.ApplyMark(m.Symbol, m.MarkPrice, m.Ts)
		if !m.FairPrice.Equal(m.MarkPrice) {
			d.store.ApplyFair(m.Symbol, m.FairPrice, m.Ts)
		}

	case types.ChannelDepth:
		dp, ok := msg.Payload.(types.DepthUpdate)
		if !ok {
			return
		}
		// Depth-only updates do not emit a tick: detection triggers on
		// price change, and depth is read opportunistically off the store
		// when a ticker/mark tick fires.
		d.store.ApplyDepth(dp.Symbol, dp.Bids, dp.Asks, dp.Ts)
		return

	default:
		return
	}

	d.emitTick(types.Tick{Symbol: msg.Symbol, Ts: msg.Ts})
}

func (d *Dispatcher) emitTick(t types.Tick) {
	d.ticks.Push(t)
}
