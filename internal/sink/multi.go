package sink

import "pump-monitor/pkg/types"

// Multi fans one strategy's finalized records out to several sinks — used
// to write the durable log file and push to diagnostics subscribers from
// the same Emit call.
type Multi struct {
	sinks []Sink
}

// NewMulti combines sinks into one. Emit calls every member; Close closes
// every member and returns the first error encountered.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Emit(rec types.EpisodeRecord) {
	for _, s := range m.sinks {
		s.Emit(rec)
	}
}

func (m *Multi) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
