package detect

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pump-monitor/internal/config"
	"pump-monitor/internal/market"
	"pump-monitor/pkg/types"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestBoundaryExactRatioIsMet(t *testing.T) {
	cfg := config.Strategy1Config{}
	cfg.Enabled = true
	cfg.SpreadRatioMin = 1.5
	cfg.MinAbsDiff = 0
	cfg.MinPrice = 0.01

	s1 := NewStrategy1(cfg)

	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("1.5"),
		HasMark: true, MarkPrice: dec("1.0"),
	}

	res := s1.Evaluate(snap, time.Now())
	if !res.Met {
		t.Fatal("expected last = mark * spread_ratio_min exactly to be met (inclusive bound)")
	}
	if !res.R.Equal(dec("1.5")) {
		t.Fatalf("expected R=1.5, got %s", res.R)
	}
}

func TestBoundaryJustBelowRatioIsNotMet(t *testing.T) {
	cfg := config.Strategy1Config{}
	cfg.Enabled = true
	cfg.SpreadRatioMin = 1.5
	cfg.MinAbsDiff = 0
	cfg.MinPrice = 0.01

	s1 := NewStrategy1(cfg)
	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("1.4999"),
		HasMark: true, MarkPrice: dec("1.0"),
	}

	if res := s1.Evaluate(snap, time.Now()); res.Met {
		t.Fatal("expected ratio just below spread_ratio_min to be not met")
	}
}

func strategy2Config() config.Strategy2Config {
	cfg := config.Strategy2Config{}
	cfg.Enabled = true
	cfg.SpreadRatioMin = 1.3
	cfg.MinAbsDiff = 0
	cfg.MinPrice = 0.01
	cfg.SpikeLookbackSecs = 5
	cfg.SpikeRatioMin = 1.2
	return cfg
}

// TestScenario3Strategy2SpikeVsBaseline reproduces the literal scenario:
// history at 1.0 from t=0..4, current tick at t=5 with last=1.5, mark=1.0.
func TestScenario3Strategy2SpikeVsBaseline(t *testing.T) {
	s2 := NewStrategy2(strategy2Config())

	base := time.Unix(0, 0)
	var history []types.HistorySample
	for i := 0; i <= 4; i++ {
		history = append(history, types.HistorySample{
			Ts: base.Add(time.Duration(i) * time.Second), Last: dec("1.0"), Mark: dec("1.0"),
		})
	}

	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("1.5"),
		HasMark: true, MarkPrice: dec("1.0"),
		History: history,
	}

	res := s2.Evaluate(snap, base.Add(5*time.Second))
	if !res.Met {
		t.Fatal("expected strategy 2 to fire: spike 1.5/1.0=1.5 >= 1.2 and R=1.5 >= 1.3")
	}
}

// TestBoundaryStrategy2ShortHistoryNotMet (B2): history shorter than
// spike_lookback_secs must yield not-met even when the spread gate passes.
func TestBoundaryStrategy2ShortHistoryNotMet(t *testing.T) {
	s2 := NewStrategy2(strategy2Config())

	base := time.Unix(0, 0)
	history := []types.HistorySample{
		{Ts: base.Add(3 * time.Second), Last: dec("1.0"), Mark: dec("1.0")},
		{Ts: base.Add(4 * time.Second), Last: dec("1.0"), Mark: dec("1.0")},
	}

	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("1.5"),
		HasMark: true, MarkPrice: dec("1.0"),
		History: history,
	}

	// lookback=5s, but history only reaches back to t=3s (now=5s): too short.
	res := s2.Evaluate(snap, base.Add(5*time.Second))
	if res.Met {
		t.Fatal("expected not-met when retained history is shorter than the lookback window")
	}
}

func TestBoundaryStrategy2EmptyHistoryNotMet(t *testing.T) {
	s2 := NewStrategy2(strategy2Config())
	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("1.5"),
		HasMark: true, MarkPrice: dec("1.0"),
	}
	if res := s2.Evaluate(snap, time.Now()); res.Met {
		t.Fatal("expected not-met with empty history")
	}
}

func strategy3Config() config.Strategy3Config {
	cfg := config.Strategy3Config{}
	cfg.Enabled = true
	cfg.SpreadRatioMin = 1.2
	cfg.MinAbsDiff = 0
	cfg.MinPrice = 0.01
	cfg.BaselineWindowSecs = 60
	cfg.PumpVsBaselineMin = 1.5
	cfg.MarkStabilityMax = 0.05
	return cfg
}

// TestScenario4Strategy3BaselineStability reproduces the literal scenario:
// mean last=1.0 over the baseline window, mark ranging [1.00,1.02]
// (mark_var=0.02<=0.05), current last=1.6 mark=1.0.
func TestScenario4Strategy3BaselineStability(t *testing.T) {
	s3 := NewStrategy3(strategy3Config())

	base := time.Unix(0, 0)
	history := []types.HistorySample{
		{Ts: base, Last: dec("1.0"), Mark: dec("1.00")},
		{Ts: base.Add(20 * time.Second), Last: dec("1.0"), Mark: dec("1.02")},
		{Ts: base.Add(40 * time.Second), Last: dec("1.0"), Mark: dec("1.01")},
	}

	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("1.6"),
		HasMark: true, MarkPrice: dec("1.0"),
		History: history,
	}

	res := s3.Evaluate(snap, base.Add(60*time.Second))
	if !res.Met {
		t.Fatal("expected strategy 3 to fire: pump vs baseline 1.6 and stable mark")
	}
	if !res.R.Equal(dec("1.6")) {
		t.Fatalf("expected R=1.6, got %s", res.R)
	}
}

func TestStrategy3UnstableMarkNotMet(t *testing.T) {
	s3 := NewStrategy3(strategy3Config())

	base := time.Unix(0, 0)
	history := []types.HistorySample{
		{Ts: base, Last: dec("1.0"), Mark: dec("1.0")},
		{Ts: base.Add(20 * time.Second), Last: dec("1.0"), Mark: dec("1.2")},
	}

	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("1.6"),
		HasMark: true, MarkPrice: dec("1.0"),
		History: history,
	}

	if res := s3.Evaluate(snap, base.Add(60*time.Second)); res.Met {
		t.Fatal("expected unstable mark (var > max) to be not met")
	}
}

func strategy4Config() (config.Strategy4Config, config.OrderbookConfig) {
	cfg := config.Strategy4Config{}
	cfg.Enabled = true
	cfg.SpreadRatioMin = 1.5
	cfg.MinAbsDiff = 0
	cfg.MinPrice = 0.01

	ob := config.OrderbookConfig{
		MaxLevels:         50,
		DepthBandPct:      0.005,
		MinThickDepthUSDT: 10000,
		MaxSpreadPct:      0.003,
	}
	return cfg, ob
}

// TestScenario5Strategy4ThickDepth reproduces the literal scenario: best bid
// 99.9x60, best ask 100.1x60, mid=100, spread_pct=0.002<=0.003, band
// [99.5,100.5] captures both sides, depth=12000>=10000, last=160 mark=100.
func TestScenario5Strategy4ThickDepth(t *testing.T) {
	cfg, ob := strategy4Config()
	s4 := NewStrategy4(cfg, ob)

	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("160"),
		HasMark: true, MarkPrice: dec("100"),
		HasDepth: true,
		Depth: types.OrderbookSnapshot{
			Valid:     true,
			Mid:       dec("100"),
			SpreadPct: dec("0.002"),
			Bids:      []types.PriceLevel{{Price: dec("99.9"), Size: dec("60")}},
			Asks:      []types.PriceLevel{{Price: dec("100.1"), Size: dec("60")}},
		},
	}

	res := s4.Evaluate(snap, time.Now())
	if !res.Met {
		t.Fatal("expected strategy 4 to fire: thick depth within band and R=1.6")
	}
	if !res.R.Equal(dec("1.6")) {
		t.Fatalf("expected R=1.6, got %s", res.R)
	}
}

// TestBoundaryStrategy4EmptySideNotMet (B3): an empty bid or ask side must
// yield not-met.
func TestBoundaryStrategy4EmptySideNotMet(t *testing.T) {
	cfg, ob := strategy4Config()
	s4 := NewStrategy4(cfg, ob)

	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("160"),
		HasMark: true, MarkPrice: dec("100"),
		HasDepth: true,
		Depth: types.OrderbookSnapshot{
			Valid:     true,
			Mid:       dec("100"),
			SpreadPct: dec("0.002"),
			Asks:      []types.PriceLevel{{Price: dec("100.1"), Size: dec("60")}},
		},
	}

	if res := s4.Evaluate(snap, time.Now()); res.Met {
		t.Fatal("expected empty bid side to yield not-met")
	}
}

func TestStrategy4ThinDepthNotMet(t *testing.T) {
	cfg, ob := strategy4Config()
	s4 := NewStrategy4(cfg, ob)

	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("160"),
		HasMark: true, MarkPrice: dec("100"),
		HasDepth: true,
		Depth: types.OrderbookSnapshot{
			Valid:     true,
			Mid:       dec("100"),
			SpreadPct: dec("0.002"),
			Bids:      []types.PriceLevel{{Price: dec("99.9"), Size: dec("1")}},
			Asks:      []types.PriceLevel{{Price: dec("100.1"), Size: dec("1")}},
		},
	}

	if res := s4.Evaluate(snap, time.Now()); res.Met {
		t.Fatal("expected thin depth below min_thick_depth_usdt to be not met")
	}
}

func TestCommonGateRejectsBelowMinPrice(t *testing.T) {
	cfg := config.Strategy1Config{}
	cfg.Enabled = true
	cfg.SpreadRatioMin = 1.0
	cfg.MinPrice = 10

	s1 := NewStrategy1(cfg)
	snap := market.Snapshot{
		HasLast: true, LastPrice: dec("5"),
		HasMark: true, MarkPrice: dec("1"),
	}
	if res := s1.Evaluate(snap, time.Now()); res.Met {
		t.Fatal("expected last_price below min_price to be rejected")
	}
}

func TestCommonGateRejectsMissingMark(t *testing.T) {
	cfg := config.Strategy1Config{}
	cfg.Enabled = true
	cfg.SpreadRatioMin = 1.0

	s1 := NewStrategy1(cfg)
	snap := market.Snapshot{HasLast: true, LastPrice: dec("5")}
	if res := s1.Evaluate(snap, time.Now()); res.Met {
		t.Fatal("expected missing mark price to be rejected")
	}
}
