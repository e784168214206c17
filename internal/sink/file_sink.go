package sink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"pump-monitor/pkg/types"
)

// queueCapacity is the per-strategy buffer depth.
const queueCapacity = 1024

// FileSink appends EpisodeRecords for one strategy to an append-only text
// log file, one line per record. Every write is followed by an explicit
// Sync, so a crash can lose at most the records still sitting in the
// channel buffer, never corrupt a line already reported as written.
type FileSink struct {
	strategy string
	queue    chan types.EpisodeRecord
	dropped  atomic.Uint64
	logger   *slog.Logger

	wg     sync.WaitGroup
	done   chan struct{}
	file   *os.File
}

// NewFileSink opens (creating if absent) <logDir>/<strategy>_episodes.log
// for append and starts its writer goroutine.
func NewFileSink(logDir, strategy string, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(logDir, strategy+"_episodes.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open episode log %s: %w", path, err)
	}

	s := &FileSink{
		strategy: strategy,
		queue:    make(chan types.EpisodeRecord, queueCapacity),
		logger:   logger,
		done:     make(chan struct{}),
		file:     f,
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Emit enqueues rec, dropping the oldest queued record with a counted
// warning if the buffer is full.
func (s *FileSink) Emit(rec types.EpisodeRecord) {
	select {
	case s.queue <- rec:
		return
	default:
	}

	// Queue full: drop the oldest pending record to make room, then enqueue.
	select {
	case <-s.queue:
		s.dropped.Add(1)
		s.logger.Warn("episode sink queue full, dropped oldest record",
			"strategy", s.strategy, "total_dropped", s.dropped.Load())
	default:
	}

	select {
	case s.queue <- rec:
	default:
		s.dropped.Add(1)
	}
}

func (s *FileSink) run() {
	defer s.wg.Done()
	for {
		select {
		case rec, ok := <-s.queue:
			if !ok {
				return
			}
			s.write(rec)
		case <-s.done:
			s.drain()
			return
		}
	}
}

func (s *FileSink) drain() {
	for {
		select {
		case rec := <-s.queue:
			s.write(rec)
		default:
			return
		}
	}
}

func (s *FileSink) write(rec types.EpisodeRecord) {
	line := FormatLine(rec)
	if _, err := s.file.WriteString(line + "\n"); err != nil {
		s.logger.Error("episode sink write failed", "strategy", s.strategy, "error", err)
		return
	}
	if err := s.file.Sync(); err != nil {
		s.logger.Error("episode sink sync failed", "strategy", s.strategy, "error", err)
	}
}

// Close stops the writer goroutine after draining any queued records and
// closes the underlying file.
func (s *FileSink) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.file.Close()
}

// FormatLine renders one EpisodeRecord as a single text line:
//
//	<emit_iso8601> | <SYMBOL> | START=<HH:MM:SS> | END=<HH:MM:SS> | DURATION=<N>s | PEAK_RATIO=<f> | PEAK_LAST=<f> | PEAK_MARK=<f>
func FormatLine(rec types.EpisodeRecord) string {
	emit := time.Now().UTC().Format(time.RFC3339)
	return fmt.Sprintf("%s | %s | START=%s | END=%s | DURATION=%ds | PEAK_RATIO=%s | PEAK_LAST=%s | PEAK_MARK=%s",
		emit,
		rec.Symbol,
		rec.StartAt.UTC().Format("15:04:05"),
		rec.EndAt.UTC().Format("15:04:05"),
		int64(rec.Duration/time.Second),
		rec.PeakRatio.Round(2).StringFixed(2),
		trimPrice(rec.PeakLast),
		trimPrice(rec.PeakMark),
	)
}

// trimPrice renders a price at native precision (up to 8 decimals) with
// trailing zeros trimmed.
func trimPrice(d decimal.Decimal) string {
	return d.Truncate(8).String()
}
