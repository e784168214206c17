// Package detect implements the four pump-detection strategies and the
// sharded engine that evaluates them against market state.
package detect

import (
	"time"

	"github.com/shopspring/decimal"

	"pump-monitor/internal/config"
	"pump-monitor/internal/market"
	"pump-monitor/pkg/types"
)

// StrategyID names one of the four detection predicates.
type StrategyID string

const (
	Strategy1 StrategyID = "strategy1"
	Strategy2 StrategyID = "strategy2"
	Strategy3 StrategyID = "strategy3"
	Strategy4 StrategyID = "strategy4"
)

// Result is a strategy's verdict for one tick: whether its predicate held,
// and the spread ratio R that produced it. Strategies are total functions
// of (SymbolState, now, config) with no hidden state.
type Result struct {
	Met bool
	R   decimal.Decimal
}

var notMet = Result{}

// Predicate is one case of the strategy tagged union. Each variant closes
// over its own config and evaluates a Snapshot at a point in time.
type Predicate interface {
	ID() StrategyID
	Evaluate(snap market.Snapshot, now time.Time) Result
}

// commonGate implements the shared prerequisite every strategy gates on:
// last_price >= min_price and mark_price defined and positive. Returns the
// spread ratio R alongside the gate's pass/fail.
func commonGate(snap market.Snapshot, minPrice decimal.Decimal) (decimal.Decimal, bool) {
	if !snap.HasLast || !snap.HasMark {
		return decimal.Zero, false
	}
	if !snap.MarkPrice.IsPositive() {
		return decimal.Zero, false
	}
	if snap.LastPrice.LessThan(minPrice) {
		return decimal.Zero, false
	}
	return snap.LastPrice.Div(snap.MarkPrice), true
}

// --- Strategy 1: Simple Spread ---

type strategy1 struct {
	cfg config.Strategy1Config
}

func NewStrategy1(cfg config.Strategy1Config) Predicate { return strategy1{cfg: cfg} }

func (s strategy1) ID() StrategyID { return Strategy1 }

func (s strategy1) Evaluate(snap market.Snapshot, now time.Time) Result {
	minPrice := decimal.NewFromFloat(s.cfg.MinPrice)
	R, ok := commonGate(snap, minPrice)
	if !ok {
		return notMet
	}

	ratioMin := decimal.NewFromFloat(s.cfg.SpreadRatioMin)
	minAbsDiff := decimal.NewFromFloat(s.cfg.MinAbsDiff)

	if R.LessThan(ratioMin) {
		return notMet
	}
	if snap.LastPrice.Sub(snap.MarkPrice).LessThan(minAbsDiff) {
		return notMet
	}
	return Result{Met: true, R: R}
}

// --- Strategy 2: Spread + Recent Spike ---

type strategy2 struct {
	cfg config.Strategy2Config
}

func NewStrategy2(cfg config.Strategy2Config) Predicate { return strategy2{cfg: cfg} }

func (s strategy2) ID() StrategyID { return Strategy2 }

func (s strategy2) Evaluate(snap market.Snapshot, now time.Time) Result {
	minPrice := decimal.NewFromFloat(s.cfg.MinPrice)
	R, ok := commonGate(snap, minPrice)
	if !ok {
		return notMet
	}

	ratioMin := decimal.NewFromFloat(s.cfg.SpreadRatioMin)
	if R.LessThan(ratioMin) {
		return notMet
	}

	if len(snap.History) == 0 {
		return notMet
	}
	target := now.Add(-time.Duration(s.cfg.SpikeLookbackSecs) * time.Second)
	if snap.History[0].Ts.After(target) {
		// Retained history does not yet reach back far enough to cover the
		// lookback window: too early to compare against a spike baseline.
		return notMet
	}
	sample, found := closestSample(snap.History, target)
	if !found {
		return notMet
	}
	if !sample.Last.IsPositive() {
		return notMet
	}

	spikeRatioMin := decimal.NewFromFloat(s.cfg.SpikeRatioMin)
	spike := snap.LastPrice.Div(sample.Last)
	if spike.LessThan(spikeRatioMin) {
		return notMet
	}
	return Result{Met: true, R: R}
}

// closestSample finds the history sample whose timestamp is nearest to
// target. Returns found=false for an empty history.
func closestSample(history []types.HistorySample, target time.Time) (types.HistorySample, bool) {
	if len(history) == 0 {
		return types.HistorySample{}, false
	}

	best := history[0]
	bestDiff := absDuration(best.Ts.Sub(target))
	for _, s := range history[1:] {
		diff := absDuration(s.Ts.Sub(target))
		if diff < bestDiff {
			best = s
			bestDiff = diff
		}
	}
	return best, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// --- Strategy 3: Spread + Baseline Stability ---

type strategy3 struct {
	cfg config.Strategy3Config
}

func NewStrategy3(cfg config.Strategy3Config) Predicate { return strategy3{cfg: cfg} }

func (s strategy3) ID() StrategyID { return Strategy3 }

func (s strategy3) Evaluate(snap market.Snapshot, now time.Time) Result {
	minPrice := decimal.NewFromFloat(s.cfg.MinPrice)
	R, ok := commonGate(snap, minPrice)
	if !ok {
		return notMet
	}

	ratioMin := decimal.NewFromFloat(s.cfg.SpreadRatioMin)
	if R.LessThan(ratioMin) {
		return notMet
	}

	window := time.Duration(s.cfg.BaselineWindowSecs) * time.Second
	cutoff := now.Add(-window)
	var samples []types.HistorySample
	for _, h := range snap.History {
		if !h.Ts.Before(cutoff) {
			samples = append(samples, h)
		}
	}
	if len(samples) < 2 {
		return notMet
	}

	sumLast := decimal.Zero
	sumMark := decimal.Zero
	maxMark := samples[0].Mark
	minMark := samples[0].Mark
	for _, sm := range samples {
		sumLast = sumLast.Add(sm.Last)
		sumMark = sumMark.Add(sm.Mark)
		if sm.Mark.GreaterThan(maxMark) {
			maxMark = sm.Mark
		}
		if sm.Mark.LessThan(minMark) {
			minMark = sm.Mark
		}
	}
	n := decimal.NewFromInt(int64(len(samples)))
	baseLast := sumLast.Div(n)
	meanMark := sumMark.Div(n)

	if !baseLast.IsPositive() || !meanMark.IsPositive() {
		return notMet
	}

	pumpVsBaselineMin := decimal.NewFromFloat(s.cfg.PumpVsBaselineMin)
	if snap.LastPrice.Div(baseLast).LessThan(pumpVsBaselineMin) {
		return notMet
	}

	markStabilityMax := decimal.NewFromFloat(s.cfg.MarkStabilityMax)
	markVar := maxMark.Sub(minMark).Div(meanMark)
	if markVar.GreaterThan(markStabilityMax) {
		return notMet
	}

	return Result{Met: true, R: R}
}

// --- Strategy 4: Spread + Thick Orderbook ---

type strategy4 struct {
	cfg       config.Strategy4Config
	orderbook config.OrderbookConfig
}

func NewStrategy4(cfg config.Strategy4Config, ob config.OrderbookConfig) Predicate {
	return strategy4{cfg: cfg, orderbook: ob}
}

func (s strategy4) ID() StrategyID { return Strategy4 }

func (s strategy4) Evaluate(snap market.Snapshot, now time.Time) Result {
	minPrice := decimal.NewFromFloat(s.cfg.MinPrice)
	R, ok := commonGate(snap, minPrice)
	if !ok {
		return notMet
	}

	ratioMin := decimal.NewFromFloat(s.cfg.SpreadRatioMin)
	minAbsDiff := decimal.NewFromFloat(s.cfg.MinAbsDiff)
	if R.LessThan(ratioMin) {
		return notMet
	}
	if snap.LastPrice.Sub(snap.MarkPrice).LessThan(minAbsDiff) {
		return notMet
	}

	if !snap.HasDepth || !snap.Depth.Valid {
		return notMet
	}
	if len(snap.Depth.Bids) == 0 || len(snap.Depth.Asks) == 0 {
		return notMet
	}

	maxSpreadPct := decimal.NewFromFloat(s.orderbook.MaxSpreadPct)
	if snap.Depth.SpreadPct.GreaterThan(maxSpreadPct) {
		return notMet
	}

	mid := snap.Depth.Mid
	if !mid.IsPositive() {
		return notMet
	}
	band := decimal.NewFromFloat(s.orderbook.DepthBandPct)

	thick := decimal.Zero
	for _, lvl := range snap.Depth.Bids {
		if withinBand(lvl.Price, mid, band) {
			thick = thick.Add(lvl.Size.Mul(lvl.Price))
		}
	}
	for _, lvl := range snap.Depth.Asks {
		if withinBand(lvl.Price, mid, band) {
			thick = thick.Add(lvl.Size.Mul(lvl.Price))
		}
	}

	minThickDepth := decimal.NewFromFloat(s.orderbook.MinThickDepthUSDT)
	if thick.LessThan(minThickDepth) {
		return notMet
	}

	return Result{Met: true, R: R}
}

func withinBand(price, mid, band decimal.Decimal) bool {
	diff := price.Sub(mid).Abs().Div(mid)
	return diff.LessThanOrEqual(band)
}
