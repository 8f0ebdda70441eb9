// Package chread answers event and analytics queries over guard_events.
package chread

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the guard_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader wraps an open ClickHouse connection (see storage.Open).
func NewReader(conn driver.Conn, logger *zap.Logger) *Reader {
	return &Reader{conn: conn, logger: logger}
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow is one guard_events row, minus the raw input hash.
type EventRow struct {
	RequestID        string
	ClientID         string
	Timestamp        time.Time
	Kind             string
	Outcome          string
	Reason           string
	Tier             string
	Indicators       []string
	SignatureTags    []string
	SignatureClasses []string
	UserID           string
	SessionID        string
	InputPreview     string
	InputSize        uint32
	LatencyMs        float32
	Source           string
}

const eventColumns = "request_id, client_id, timestamp, kind, outcome, reason, " +
	"tier, indicators, signature_tags, signature_classes, " +
	"user_id, session_id, input_preview, input_size, latency_ms, source"

func (e *EventRow) dest() []any {
	return []any{
		&e.RequestID, &e.ClientID, &e.Timestamp, &e.Kind, &e.Outcome, &e.Reason,
		&e.Tier, &e.Indicators, &e.SignatureTags, &e.SignatureClasses,
		&e.UserID, &e.SessionID, &e.InputPreview, &e.InputSize, &e.LatencyMs, &e.Source,
	}
}

// ListEventsParams holds filters and pagination for event listing.
// Nil filters are not applied.
type ListEventsParams struct {
	ClientID  string
	Kind      *string
	Outcome   *string
	Tier      *string
	UserID    *string
	Signature *string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// where builds the WHERE clause and its named arguments.
func (p ListEventsParams) where() (string, []any) {
	conditions := []string{"client_id = @client_id"}
	args := []any{clickhouse.Named("client_id", p.ClientID)}

	add := func(cond, name string, v any) {
		conditions = append(conditions, cond)
		args = append(args, clickhouse.Named(name, v))
	}
	if p.Kind != nil {
		add("kind = @kind", "kind", *p.Kind)
	}
	if p.Outcome != nil {
		add("outcome = @outcome", "outcome", *p.Outcome)
	}
	if p.Tier != nil {
		add("tier = @tier", "tier", *p.Tier)
	}
	if p.UserID != nil {
		add("user_id = @user_id", "user_id", *p.UserID)
	}
	if p.Signature != nil {
		add("has(signature_tags, @signature)", "signature", *p.Signature)
	}
	if p.StartTime != nil {
		add("timestamp >= @start_time", "start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		add("timestamp <= @end_time", "end_time", *p.EndTime)
	}
	return strings.Join(conditions, " AND "), args
}

// ListEvents returns one page of matching events, newest first, and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	where, args := params.where()

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM guard_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM guard_events WHERE %s ORDER BY timestamp DESC LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32((params.Page-1)*params.PageSize)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(e.dest()...); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}
	return events, int(total), rows.Err()
}

// GetEvent returns one event of a client, or nil if not found.
func (r *Reader) GetEvent(ctx context.Context, clientID, requestID string) (*EventRow, error) {
	rows, err := r.conn.Query(ctx,
		"SELECT "+eventColumns+" FROM guard_events "+
			"WHERE client_id = @client_id AND request_id = @request_id LIMIT 1",
		clickhouse.Named("client_id", clientID),
		clickhouse.Named("request_id", requestID),
	)
	if err != nil {
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var e EventRow
	if err := rows.Scan(e.dest()...); err != nil {
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	return &e, nil
}
