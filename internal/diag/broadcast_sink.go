package diag

import "pump-monitor/pkg/types"

// BroadcastSink adapts a Hub to the sink.Sink interface so the episode
// tracker can push finalized records to connected dashboard clients the
// same way it writes them to a file sink — the diagnostics surface never
// needs special-case wiring into the tracker.
type BroadcastSink struct {
	hub *Hub
}

// NewBroadcastSink wraps hub as a sink.Sink.
func NewBroadcastSink(hub *Hub) *BroadcastSink {
	return &BroadcastSink{hub: hub}
}

func (b *BroadcastSink) Emit(rec types.EpisodeRecord) {
	b.hub.BroadcastEpisode(rec)
}

func (b *BroadcastSink) Close() error { return nil }
