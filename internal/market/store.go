// Package market provides the concurrent per-symbol market-state store.
//
// Store mirrors three interleaved feeds — ticker, mark/fair price, and L2
// depth — into one SymbolState per symbol. It is updated by the ingestion
// dispatcher and read by the detection engine. Each symbol's state is
// guarded by its own RWMutex (a per-entry lock, not a global one) so
// hundreds of symbols can be written and read concurrently without
// contending on each other.
package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pump-monitor/pkg/types"
)

// SymbolState is the store's per-symbol record. Owned exclusively by Store;
// callers only ever see a Snapshot (a value copy), never the live pointer,
// so a reader can't observe a partially-updated entity.
type SymbolState struct {
	mu sync.RWMutex

	lastPrice   decimal.Decimal
	hasLast     bool
	markPrice   decimal.Decimal
	hasMark     bool
	fairPrice   decimal.Decimal
	hasFair     bool
	updatedAt   time.Time
	history     []types.HistorySample // strictly ascending by Ts
	depth       types.OrderbookSnapshot
	hasDepth    bool
}

// Snapshot is a consistent, read-only view of one symbol's state at a
// point in time.
type Snapshot struct {
	LastPrice decimal.Decimal
	HasLast   bool
	MarkPrice decimal.Decimal
	HasMark   bool
	FairPrice decimal.Decimal
	HasFair   bool
	UpdatedAt time.Time
	History   []types.HistorySample // defensive copy
	Depth     types.OrderbookSnapshot
	HasDepth  bool
}

// Store is a concurrent mapping symbol -> *SymbolState. The map itself is
// guarded by a single RWMutex for structural changes (insert at startup);
// per-symbol mutation goes through the entry's own lock, so steady-state
// ingestion never blocks across symbols.
type Store struct {
	mu      sync.RWMutex
	symbols map[string]*SymbolState

	maxLevels int
	maxWindow time.Duration // H_max: largest window any enabled strategy needs
}

// New creates an empty store. maxLevels truncates depth snapshots; maxWindow
// bounds history retention.
func New(maxLevels int, maxWindow time.Duration) *Store {
	if maxWindow <= 0 {
		maxWindow = 60 * time.Second
	}
	return &Store{
		symbols:   make(map[string]*SymbolState),
		maxLevels: maxLevels,
		maxWindow: maxWindow,
	}
}

// Ensure idempotently registers a symbol at startup.
func (s *Store) Ensure(symbol string) {
	s.mu.RLock()
	_, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.symbols[symbol]; !ok {
		s.symbols[symbol] = &SymbolState{}
	}
}

// Has reports whether symbol was registered via Ensure. Unknown symbols in
// feeds are silently dropped by the caller.
func (s *Store) Has(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.symbols[symbol]
	return ok
}

func (s *Store) get(symbol string) *SymbolState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbols[symbol]
}

// ApplyTicker updates last price. If mark is already known, the pair is
// appended to history.
func (s *Store) ApplyTicker(symbol string, last decimal.Decimal, ts time.Time) {
	st := s.get(symbol)
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if ts.Before(st.updatedAt) {
		// Out-of-order delivery for this field: still last-write-wins for
		// the scalar at equal timestamps, but never regress updatedAt.
	}
	st.lastPrice = last
	st.hasLast = true
	if !st.updatedAt.After(ts) {
		st.updatedAt = ts
	}

	if st.hasMark {
		s.appendHistoryLocked(st, ts, last, st.markPrice)
	}
}

// ApplyMark updates mark price (and fair price, which aliases mark unless
// ApplyFair overrides it independently).
func (s *Store) ApplyMark(symbol string, mark decimal.Decimal, ts time.Time) {
	st := s.get(symbol)
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.markPrice = mark
	st.hasMark = true
	if !st.hasFair {
		st.fairPrice = mark
	}
	if !st.updatedAt.After(ts) {
		st.updatedAt = ts
	}

	if st.hasLast {
		s.appendHistoryLocked(st, ts, st.lastPrice, mark)
	}
}

// ApplyFair updates the independent fair price field.
func (s *Store) ApplyFair(symbol string, fair decimal.Decimal, ts time.Time) {
	st := s.get(symbol)
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.fairPrice = fair
	st.hasFair = true
	if !st.updatedAt.After(ts) {
		st.updatedAt = ts
	}
}

// appendHistoryLocked appends a (ts, last, mark) sample and evicts the head
// while it falls outside the retention window. Must be called with st.mu
// held. Duplicate timestamps overwrite the prior entry (last write wins).
func (s *Store) appendHistoryLocked(st *SymbolState, ts time.Time, last, mark decimal.Decimal) {
	n := len(st.history)
	if n > 0 && st.history[n-1].Ts.Equal(ts) {
		st.history[n-1] = types.HistorySample{Ts: ts, Last: last, Mark: mark}
	} else {
		st.history = append(st.history, types.HistorySample{Ts: ts, Last: last, Mark: mark})
	}

	cutoff := ts.Add(-s.maxWindow)
	evict := 0
	for evict < len(st.history) && st.history[evict].Ts.Before(cutoff) {
		evict++
	}
	if evict > 0 {
		st.history = st.history[evict:]
	}
}

// ApplyDepth replaces the depth snapshot wholesale after truncating both
// sides to maxLevels and deriving Mid/SpreadPct.
func (s *Store) ApplyDepth(symbol string, bids, asks []types.PriceLevel, ts time.Time) {
	st := s.get(symbol)
	if st == nil {
		return
	}

	if len(bids) > s.maxLevels {
		bids = bids[:s.maxLevels]
	}
	if len(asks) > s.maxLevels {
		asks = asks[:s.maxLevels]
	}

	snap := types.OrderbookSnapshot{Bids: bids, Asks: asks, Ts: ts}
	if len(bids) > 0 && len(asks) > 0 {
		bestBid, bestAsk := bids[0].Price, asks[0].Price
		mid := bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
		if mid.IsPositive() {
			snap.Mid = mid
			snap.SpreadPct = bestAsk.Sub(bestBid).Div(mid)
			snap.Valid = true
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.depth = snap
	st.hasDepth = true
	if !st.updatedAt.After(ts) {
		st.updatedAt = ts
	}
}

// Snapshot returns a consistent read-only view of symbol's state. Returns
// (Snapshot{}, false) for unregistered symbols.
func (s *Store) Snapshot(symbol string) (Snapshot, bool) {
	st := s.get(symbol)
	if st == nil {
		return Snapshot{}, false
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	hist := make([]types.HistorySample, len(st.history))
	copy(hist, st.history)

	return Snapshot{
		LastPrice: st.lastPrice,
		HasLast:   st.hasLast,
		MarkPrice: st.markPrice,
		HasMark:   st.hasMark,
		FairPrice: st.fairPrice,
		HasFair:   st.hasFair,
		UpdatedAt: st.updatedAt,
		History:   hist,
		Depth:     st.depth,
		HasDepth:  st.hasDepth,
	}, true
}

// Symbols returns all registered symbol names. Order is unspecified.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}
