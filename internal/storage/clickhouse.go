package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/metrics"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseWriter writes detection events to ClickHouse asynchronously.
// Write() is non-blocking: events are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *DetectionEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// OpenClickHouse parses dsn, connects and pings.
func OpenClickHouse(ctx context.Context, dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// ClickHouse Cloud only accepts TLS; ParseDSN leaves TLS nil without ?secure=true.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// NewClickHouseWriter creates a ClickHouseWriter and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	conn, err := OpenClickHouse(context.Background(), dsn)
	if err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *DetectionEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Migrate creates the detection_events table if it does not exist.
func (w *ClickHouseWriter) Migrate(ctx context.Context) error {
	return w.conn.Exec(ctx, DetectionEventsDDL)
}

// Write queues a detection event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *DetectionEvent) {
	select {
	case w.buffer <- event:
	default:
		metrics.EventsDropped.Inc()
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining events, waits for it to
// finish (up to drainTimeout), and closes the connection. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*DetectionEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			batch = drain(w.buffer, batch, drainTimeout)
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

// drain empties buffer into batch until it is empty or timeout passes.
func drain(buffer <-chan *DetectionEvent, batch []*DetectionEvent, timeout time.Duration) []*DetectionEvent {
	deadline := time.After(timeout)
	for {
		select {
		case event := <-buffer:
			batch = append(batch, event)
		case <-deadline:
			return batch
		default:
			return batch
		}
	}
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (w *ClickHouseWriter) flush(events []*DetectionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO detection_events (
			request_id, timestamp, user_agent, user_agent_hash, ip,
			is_bot, confidence, bot_name, bot_vendor, bot_category,
			method, indicators, needs_review, priority, matched_pattern,
			verdict, cache_ttl_sec, ip_verification,
			browser, os, device_type, latency_ms, source
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		indicators := e.Indicators
		if indicators == nil {
			indicators = []string{}
		}
		if err := batch.Append(
			e.RequestID,
			e.Timestamp,
			e.UserAgent,
			e.UserAgentHash,
			e.IP,
			boolToUint8(e.IsBot),
			e.Confidence,
			e.BotName,
			e.BotVendor,
			e.BotCategory,
			e.Method,
			indicators,
			boolToUint8(e.NeedsReview),
			e.Priority,
			e.MatchedPattern,
			e.Verdict,
			e.CacheTTLSec,
			e.IPVerification,
			e.Browser,
			e.OS,
			e.DeviceType,
			e.LatencyMs,
			e.Source,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *DetectionEvent) {
	w.logger.Info("detection_event",
		zap.String("request_id", event.RequestID),
		zap.String("user_agent", event.UserAgent),
		zap.Bool("is_bot", event.IsBot),
		zap.Float32("confidence", event.Confidence),
		zap.String("bot_name", event.BotName),
		zap.String("method", event.Method),
		zap.Strings("indicators", event.Indicators),
		zap.Bool("needs_review", event.NeedsReview),
		zap.String("verdict", event.Verdict),
		zap.String("ip_verification", event.IPVerification),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
