// Package episode implements the per-(symbol, strategy) episode state
// machine: Idle -> Active -> Cooldown -> Idle, with peak tracking and a
// cross-strategy shared cooldown per symbol: one strategy entering
// Cooldown for a symbol fans out to every sibling strategy for that same
// symbol.
package episode

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pump-monitor/internal/sink"
	"pump-monitor/pkg/types"
)

type phase int

const (
	phaseIdle phase = iota
	phaseActive
	phaseCooldown
)

func (p phase) String() string {
	switch p {
	case phaseActive:
		return "active"
	case phaseCooldown:
		return "cooldown"
	default:
		return "idle"
	}
}

// state is one (symbol, strategy) pair's episode machine.
type state struct {
	ph        phase
	startAt   time.Time
	peakRatio decimal.Decimal
	peakLast  decimal.Decimal
	peakMark  decimal.Decimal
}

// symbolEntry groups every strategy's state for one symbol plus the
// cooldown shared across all of them: the cooldown is per symbol, not
// per strategy.
type symbolEntry struct {
	mu            sync.Mutex
	strategies    map[string]*state
	cooldownUntil time.Time
}

// Tracker owns episode state for every (symbol, strategy) pair and
// forwards finalized records to sinks.
type Tracker struct {
	mu      sync.Mutex
	symbols map[string]*symbolEntry

	cooldown time.Duration
	sinks    map[string]sink.Sink
}

// New builds a Tracker. cooldown is the per-symbol cooldown duration
// (cooldowns.per_symbol_seconds); sinks maps strategy id to its Sink.
func New(cooldown time.Duration, sinks map[string]sink.Sink) *Tracker {
	return &Tracker{
		symbols:  make(map[string]*symbolEntry),
		cooldown: cooldown,
		sinks:    sinks,
	}
}

func (t *Tracker) entry(symbol string) *symbolEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.symbols[symbol]
	if !ok {
		e = &symbolEntry{strategies: make(map[string]*state)}
		t.symbols[symbol] = e
	}
	return e
}

// Observe feeds one strategy's verdict for one tick into the state
// machine.
func (t *Tracker) Observe(symbol, strategy string, met bool, R, last, mark decimal.Decimal, now time.Time) {
	e := t.entry(symbol)

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.strategies[strategy]
	if !ok {
		st = &state{ph: phaseIdle}
		e.strategies[strategy] = st
	}

	// The cooldown is symbol-wide, not per-strategy: any strategy whose
	// episode finalized sets e.cooldownUntil, and every strategy for that
	// symbol — including ones that were never Active — is blocked from
	// starting a new episode until it passes, regardless of its own phase
	// bookkeeping.
	inCooldown := now.Before(e.cooldownUntil)
	if st.ph == phaseCooldown && !inCooldown {
		st.ph = phaseIdle
	}

	switch st.ph {
	case phaseIdle, phaseCooldown:
		if !met || inCooldown {
			if met && inCooldown {
				st.ph = phaseCooldown
			}
			return
		}
		st.ph = phaseActive
		st.startAt = now
		st.peakRatio = R
		st.peakLast = last
		st.peakMark = mark

	case phaseActive:
		if met {
			// Peak tie-break: on equal R the later sample wins.
			if R.GreaterThanOrEqual(st.peakRatio) {
				st.peakRatio = R
				st.peakLast = last
				st.peakMark = mark
			}
			return
		}

		t.finalizeLocked(e, symbol, strategy, st, now)
	}
}

// finalizeLocked ends an Active episode, emits its record, and starts the
// symbol-wide cooldown shared by every strategy. Caller must hold e.mu.
func (t *Tracker) finalizeLocked(e *symbolEntry, symbol, strategy string, st *state, endAt time.Time) {
	rec := types.EpisodeRecord{
		Symbol:    symbol,
		Strategy:  strategy,
		StartAt:   st.startAt,
		EndAt:     endAt,
		Duration:  endAt.Sub(st.startAt),
		PeakRatio: st.peakRatio,
		PeakLast:  st.peakLast,
		PeakMark:  st.peakMark,
	}

	st.ph = phaseCooldown
	e.cooldownUntil = endAt.Add(t.cooldown)

	if s, ok := t.sinks[strategy]; ok {
		s.Emit(rec)
	}
}

// Phases returns the current phase name ("idle", "active", or "cooldown")
// for every strategy tracked for symbol. Returns nil for a symbol with no
// observed ticks yet.
func (t *Tracker) Phases(symbol string) map[string]string {
	t.mu.Lock()
	e, ok := t.symbols[symbol]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]string, len(e.strategies))
	for strategy, st := range e.strategies {
		out[strategy] = st.ph.String()
	}
	return out
}

// Shutdown finalizes every still-Active episode with end_at = now and
// flushes their records. Detection never emits a partial episode.
func (t *Tracker) Shutdown(now time.Time) {
	t.mu.Lock()
	symbols := make([]*symbolEntry, 0, len(t.symbols))
	names := make([]string, 0, len(t.symbols))
	for sym, e := range t.symbols {
		symbols = append(symbols, e)
		names = append(names, sym)
	}
	t.mu.Unlock()

	for i, e := range symbols {
		e.mu.Lock()
		for strategy, st := range e.strategies {
			if st.ph == phaseActive {
				t.finalizeLocked(e, names[i], strategy, st, now)
			}
		}
		e.mu.Unlock()
	}
}
