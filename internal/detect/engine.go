package detect

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"pump-monitor/internal/episode"
	"pump-monitor/internal/market"
	"pump-monitor/pkg/types"
)

// shardCount is the number of symbol-hash shards the engine spreads
// evaluation across. Each shard has its own worker so that a burst of
// ticks for one symbol cannot starve others.
const shardCount = 8

// Engine evaluates all enabled strategies against the current SymbolState
// for every tick it receives, dispatching work across symbol-hash shards
// using conc/pool.
type Engine struct {
	store      *market.Store
	tracker    *episode.Tracker
	predicates []Predicate
	logger     *slog.Logger
}

// New builds an Engine evaluating predicates (already filtered to enabled
// strategies by the caller) against store, forwarding transitions to
// tracker.
func New(store *market.Store, tracker *episode.Tracker, predicates []Predicate, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, tracker: tracker, predicates: predicates, logger: logger}
}

// Run consumes ticks until in is closed or ctx is cancelled. Work is
// partitioned across shardCount goroutines by fnv32(symbol) % shardCount,
// each draining its own TickQueue so a burst of ticks for one symbol
// coalesces to the newest pending value instead of starving or blocking
// other symbols, and each backed by a conc/pool worker so ticks within a
// shard are processed in arrival order while shards proceed independently.
func (e *Engine) Run(ctx context.Context, in *types.TickQueue) {
	shards := make([]*types.TickQueue, shardCount)
	for i := range shards {
		shards[i] = types.NewTickQueue()
	}

	p := pool.New()
	for i := 0; i < shardCount; i++ {
		shard := shards[i]
		p.Go(func() {
			for {
				t, ok := shard.Next(ctx)
				if !ok {
					return
				}
				e.evaluate(t)
			}
		})
	}

	for {
		t, ok := in.Next(ctx)
		if !ok {
			break
		}
		idx := fnv32(t.Symbol) % shardCount
		shards[idx].Push(t)
	}

	for _, s := range shards {
		s.Close()
	}
	p.Wait()
}

func (e *Engine) evaluate(t types.Tick) {
	snap, ok := e.store.Snapshot(t.Symbol)
	if !ok {
		return
	}

	now := t.Ts
	if now.IsZero() {
		now = time.Now()
	}

	for _, pred := range e.predicates {
		res := pred.Evaluate(snap, now)
		e.tracker.Observe(t.Symbol, string(pred.ID()), res.Met, res.R, snap.LastPrice, snap.MarkPrice, now)
	}
}

func fnv32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
