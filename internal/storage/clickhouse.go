package storage

import (
	"context"
	"crypto/tls"
	_ "embed"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseWriter batches guard events into the guard_events table.
// Write is non-blocking; a background goroutine inserts batches.
type ClickHouseWriter struct {
	conn    driver.Conn
	insert  func(ctx context.Context, events []*GuardEvent) error
	buffer  chan *GuardEvent
	done    chan struct{}
	flushed chan struct{} // closed when flushLoop returns
	onDrop  func()
	logger  *zap.Logger
}

// WriterOption configures a ClickHouseWriter.
type WriterOption func(*ClickHouseWriter)

// WithDropHook is called for every event dropped on a full buffer.
func WithDropHook(fn func()) WriterOption {
	return func(w *ClickHouseWriter) { w.onDrop = fn }
}

// Open connects to ClickHouse and pings it. TLS is on unless the DSN
// already configured it.
func Open(dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	return conn, nil
}

// EnsureSchema creates the guard_events table if it does not exist.
func EnsureSchema(ctx context.Context, conn driver.Conn) error {
	if err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

// NewClickHouseWriter starts the background flush loop over conn.
func NewClickHouseWriter(conn driver.Conn, logger *zap.Logger, opts ...WriterOption) *ClickHouseWriter {
	w := newWriter(nil, logger, opts...)
	w.conn = conn
	w.insert = w.insertBatch
	go w.flushLoop()
	return w
}

func newWriter(insert func(context.Context, []*GuardEvent) error, logger *zap.Logger, opts ...WriterOption) *ClickHouseWriter {
	w := &ClickHouseWriter{
		insert:  insert,
		buffer:  make(chan *GuardEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Write queues an event, dropping it if the buffer is full.
func (w *ClickHouseWriter) Write(event *GuardEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
		if w.onDrop != nil {
			w.onDrop()
		}
	}
}

// Close drains buffered events (up to drainTimeout) and waits for the final
// flush. Call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*GuardEvent, 0, flushBatch)

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
			w.flush(w.drain(batch))
			return
		}
	}
}

func (w *ClickHouseWriter) drain(batch []*GuardEvent) []*GuardEvent {
	deadline := time.After(drainTimeout)
	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
		case <-deadline:
			return batch
		default:
			return batch
		}
	}
}

func (w *ClickHouseWriter) flush(events []*GuardEvent) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.insert(ctx, events); err != nil {
		w.logger.Error("clickhouse batch insert failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

func (w *ClickHouseWriter) insertBatch(ctx context.Context, events []*GuardEvent) error {
	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO guard_events (
			request_id, client_id, timestamp, kind, outcome, reason,
			tier, indicators, signature_tags, signature_classes,
			user_id, session_id,
			input_preview, input_hash, input_size,
			latency_ms, source
		)
	`)
	if err != nil {
		return fmt.Errorf("insertBatch: %w", err)
	}

	for _, e := range events {
		if err := batch.Append(
			e.RequestID,
			e.ClientID,
			e.Timestamp,
			e.Kind,
			e.Outcome,
			e.Reason,
			e.Tier,
			nonNil(e.Indicators),
			nonNil(e.SignatureTags),
			nonNil(e.SignatureClasses),
			e.UserID,
			e.SessionID,
			e.InputPreview,
			e.InputHash,
			e.InputSize,
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
		return fmt.Errorf("insertBatch: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// LogWriter is the EventWriter used without ClickHouse. It logs each event
// through zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *GuardEvent) {
	w.logger.Info("guard_event",
		zap.String("request_id", event.RequestID),
		zap.String("client_id", event.ClientID),
		zap.String("kind", event.Kind),
		zap.String("outcome", event.Outcome),
		zap.String("reason", event.Reason),
		zap.String("tier", event.Tier),
		zap.Strings("indicators", event.Indicators),
		zap.Strings("signature_tags", event.SignatureTags),
		zap.Float32("latency_ms", event.LatencyMs),
		zap.String("user_id", event.UserID),
		zap.String("source", event.Source),
	)
}

func (w *LogWriter) Close() {}
