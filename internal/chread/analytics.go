package chread

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// SummaryStats holds aggregate counts over the range.
type SummaryStats struct {
	TotalEvents int `json:"total_events"`
	Rejected    int `json:"rejected"`
	Accepted    int `json:"accepted"`
	Crisis      int `json:"crisis"`
	Fallbacks   int `json:"fallbacks"`
}

// DayBucket is a count for one UTC day.
type DayBucket struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// LabelCount pairs a label (tier, signature tag, user) with a count.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LatencyStats holds latency percentiles in milliseconds.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats `json:"summary"`
	TierDistribution   []LabelCount `json:"tier_distribution"`
	RejectionsByDay    []DayBucket  `json:"rejections_by_day"`
	AssessmentsByDay   []DayBucket  `json:"assessments_by_day"`
	TopSignatures      []LabelCount `json:"top_signatures"`
	TopAtRiskUsers     []LabelCount `json:"top_at_risk_users"`
	LatencyPercentiles LatencyStats `json:"latency_percentiles"`
}

// GetAnalytics aggregates a client's events over the last days days.
func (r *Reader) GetAnalytics(ctx context.Context, clientID string, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	args := []any{
		clickhouse.Named("client_id", clientID),
		clickhouse.Named("range_start", now.Add(-time.Duration(days)*24*time.Hour)),
	}
	const scope = "client_id = @client_id AND timestamp >= @range_start"

	result := &AnalyticsResult{}

	var total, rejected, accepted, crisis, fallbacks uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count(), "+
			"countIf(outcome = 'rejected'), "+
			"countIf(outcome = 'accepted'), "+
			"countIf(outcome = 'crisis' OR tier = 'critical'), "+
			"countIf(outcome = 'fallback') "+
			"FROM guard_events WHERE "+scope,
		args...,
	).Scan(&total, &rejected, &accepted, &crisis, &fallbacks)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalEvents: int(total),
		Rejected:    int(rejected),
		Accepted:    int(accepted),
		Crisis:      int(crisis),
		Fallbacks:   int(fallbacks),
	}

	if result.TierDistribution, err = r.labelCounts(ctx,
		"SELECT tier, count() AS c FROM guard_events "+
			"WHERE "+scope+" AND kind = 'assess' "+
			"GROUP BY tier ORDER BY c DESC", args); err != nil {
		return nil, fmt.Errorf("GetAnalytics tiers: %w", err)
	}

	if result.RejectionsByDay, err = r.dayBuckets(ctx, "outcome = 'rejected'", scope, args); err != nil {
		return nil, fmt.Errorf("GetAnalytics rejections_by_day: %w", err)
	}
	if result.AssessmentsByDay, err = r.dayBuckets(ctx, "kind = 'assess'", scope, args); err != nil {
		return nil, fmt.Errorf("GetAnalytics assessments_by_day: %w", err)
	}

	if result.TopSignatures, err = r.labelCounts(ctx,
		"SELECT arrayJoin(signature_tags) AS tag, count() AS c FROM guard_events "+
			"WHERE "+scope+" "+
			"GROUP BY tag ORDER BY c DESC LIMIT 10", args); err != nil {
		return nil, fmt.Errorf("GetAnalytics top_signatures: %w", err)
	}

	if result.TopAtRiskUsers, err = r.labelCounts(ctx,
		"SELECT user_id, count() AS c FROM guard_events "+
			"WHERE "+scope+" AND tier IN ('high', 'critical') AND user_id != '' "+
			"GROUP BY user_id ORDER BY c DESC LIMIT 10", args); err != nil {
		return nil, fmt.Errorf("GetAnalytics top_users: %w", err)
	}

	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms), quantile(0.95)(latency_ms), quantile(0.99)(latency_ms) "+
			"FROM guard_events WHERE "+scope,
		args...,
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99)}

	return result, nil
}

func (r *Reader) labelCounts(ctx context.Context, query string, args []any) ([]LabelCount, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []LabelCount{}
	for rows.Next() {
		var label string
		var count uint64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, err
		}
		out = append(out, LabelCount{Label: label, Count: int(count)})
	}
	return out, rows.Err()
}

func (r *Reader) dayBuckets(ctx context.Context, cond, scope string, args []any) ([]DayBucket, error) {
	rows, err := r.conn.Query(ctx,
		"SELECT toStartOfDay(timestamp) AS day, count() FROM guard_events "+
			"WHERE "+scope+" AND "+cond+" GROUP BY day ORDER BY day",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []DayBucket{}
	for rows.Next() {
		var day time.Time
		var count uint64
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		out = append(out, DayBucket{Day: day.Format("2006-01-02"), Count: int(count)})
	}
	return out, rows.Err()
}

// safeFloat replaces NaN/Inf with 0. ClickHouse returns NaN for quantile()
// over an empty set.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
