// Package sink consumes finalized EpisodeRecords and forwards them to
// durable storage, one bounded channel per strategy so a slow or failing
// sink cannot stall detection.
package sink

import "pump-monitor/pkg/types"

// Sink accepts finalized episode records. Emit must never block detection
// beyond a bounded internal buffer.
type Sink interface {
	// Emit enqueues rec for durable write. Non-blocking: if the sink's
	// internal buffer is full, it drops the oldest pending record and
	// counts the drop rather than blocking the caller.
	Emit(rec types.EpisodeRecord)

	// Close flushes any buffered records and releases resources.
	Close() error
}
