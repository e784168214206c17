package detect

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pump-monitor/internal/episode"
	"pump-monitor/internal/market"
	"pump-monitor/pkg/types"
)

// recordingPredicate is never "met"; it only records the last-price it was
// asked to evaluate, which the test gives a distinct value per symbol, so
// delivery can be asserted without depending on any particular strategy's
// math or on Snapshot carrying the symbol's own name.
type recordingPredicate struct {
	mu   sync.Mutex
	seen map[string]int
}

func newRecordingPredicate() *recordingPredicate {
	return &recordingPredicate{seen: make(map[string]int)}
}

func (p *recordingPredicate) ID() StrategyID { return Strategy1 }

func (p *recordingPredicate) Evaluate(snap market.Snapshot, now time.Time) Result {
	p.mu.Lock()
	p.seen[snap.LastPrice.String()]++
	p.mu.Unlock()
	return notMet
}

func (p *recordingPredicate) count(lastPrice string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[lastPrice]
}

func TestEngineRunEvaluatesEveryQueuedSymbol(t *testing.T) {
	store := market.New(50, 60*time.Second)
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	prices := make(map[string]string, len(symbols))
	for i, sym := range symbols {
		price := decimal.NewFromInt(int64(100 + i))
		prices[sym] = price.String()
		store.Ensure(sym)
		store.ApplyTicker(sym, price, time.Unix(0, 0))
		store.ApplyMark(sym, price, time.Unix(0, 0))
	}

	pred := newRecordingPredicate()
	tracker := episode.New(time.Minute, nil)
	e := New(store, tracker, []Predicate{pred}, nil)

	in := types.NewTickQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx, in)
	}()

	for _, sym := range symbols {
		in.Push(types.Tick{Symbol: sym, Ts: time.Unix(1, 0)})
		in.Push(types.Tick{Symbol: sym, Ts: time.Unix(2, 0)}) // overflow: coalesces, never dropped
	}
	in.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Engine.Run did not return after its input queue closed")
	}

	for _, sym := range symbols {
		if pred.count(prices[sym]) == 0 {
			t.Fatalf("symbol %s was never evaluated, expected at least one evaluation", sym)
		}
	}
}

func TestEngineRunReturnsOnContextCancellation(t *testing.T) {
	store := market.New(50, 60*time.Second)
	tracker := episode.New(time.Minute, nil)
	e := New(store, tracker, nil, nil)

	in := types.NewTickQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx, in)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Engine.Run did not return after context cancellation")
	}
}
