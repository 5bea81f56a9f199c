package chread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/storage"
)

// Reader provides read access to the ClickHouse detection_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	conn, err := storage.OpenClickHouse(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the detection_events table.
type EventRow struct {
	RequestID      string
	Timestamp      time.Time
	UserAgent      string
	IP             string
	IsBot          uint8
	Confidence     float32
	BotName        string
	BotVendor      string
	BotCategory    string
	Method         string
	Indicators     []string
	NeedsReview    uint8
	Priority       string
	MatchedPattern string
	Verdict        string
	IPVerification string
	Browser        string
	OS             string
	DeviceType     string
	LatencyMs      float32
	Source         string
}

const eventColumns = "request_id, timestamp, user_agent, ip, is_bot, confidence, " +
	"bot_name, bot_vendor, bot_category, method, indicators, needs_review, " +
	"priority, matched_pattern, verdict, ip_verification, " +
	"browser, os, device_type, latency_ms, source"

func scanEvent(scan func(dest ...any) error) (EventRow, error) {
	var e EventRow
	err := scan(
		&e.RequestID, &e.Timestamp, &e.UserAgent, &e.IP, &e.IsBot, &e.Confidence,
		&e.BotName, &e.BotVendor, &e.BotCategory, &e.Method, &e.Indicators, &e.NeedsReview,
		&e.Priority, &e.MatchedPattern, &e.Verdict, &e.IPVerification,
		&e.Browser, &e.OS, &e.DeviceType, &e.LatencyMs, &e.Source,
	)
	return e, err
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	IsBot       *bool
	NeedsReview *bool
	Method      *string
	Category    *string
	BotName     *string
	Verdict     *string
	StartTime   *time.Time
	EndTime     *time.Time
	Page        int
	PageSize    int
}

// filter builds the WHERE clause and its named arguments.
func (p ListEventsParams) filter() (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if p.IsBot != nil {
		conditions = append(conditions, "is_bot = @is_bot")
		args = append(args, clickhouse.Named("is_bot", boolToUint8(*p.IsBot)))
	}
	if p.NeedsReview != nil {
		conditions = append(conditions, "needs_review = @needs_review")
		args = append(args, clickhouse.Named("needs_review", boolToUint8(*p.NeedsReview)))
	}
	if p.Method != nil {
		conditions = append(conditions, "method = @method")
		args = append(args, clickhouse.Named("method", *p.Method))
	}
	if p.Category != nil {
		conditions = append(conditions, "bot_category = @category")
		args = append(args, clickhouse.Named("category", *p.Category))
	}
	if p.BotName != nil {
		conditions = append(conditions, "bot_name = @bot_name")
		args = append(args, clickhouse.Named("bot_name", *p.BotName))
	}
	if p.Verdict != nil {
		conditions = append(conditions, "verdict = @verdict")
		args = append(args, clickhouse.Named("verdict", *p.Verdict))
	}
	if p.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *p.StartTime))
	}
	if p.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *p.EndTime))
	}
	return strings.Join(conditions, " AND "), args
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// ListEvents returns paginated, filtered detection events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	where, args := params.filter()
	if params.Page < 1 {
		params.Page = 1
	}
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM detection_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT %s FROM detection_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns a single event by request ID, or nil if not found.
func (r *Reader) GetEvent(ctx context.Context, requestID string) (*EventRow, error) {
	row := r.conn.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM detection_events WHERE request_id = @request_id LIMIT 1",
		clickhouse.Named("request_id", requestID),
	)
	e, err := scanEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if e.RequestID == "" {
		return nil, nil
	}
	return &e, nil
}

// SummaryStats holds aggregate counts.
type SummaryStats struct {
	TotalDetections int `json:"total_detections"`
	Bots            int `json:"bots"`
	Humans          int `json:"humans"`
	NeedsReview     int `json:"needs_review"`
	Blocks          int `json:"blocks"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// AgentCount holds a bot name and its count.
type AgentCount struct {
	BotName  string `json:"bot_name"`
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// LabelCount holds a label and its count.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	BotsOverTime       []TimeSeriesBucket `json:"bots_over_time"`
	TopAgents          []AgentCount       `json:"top_agents"`
	Methods            []LabelCount       `json:"methods"`
	IPVerification     []LabelCount       `json:"ip_verification"`
	LatencyPercentiles LatencyStats       `json:"latency_percentiles"`
}

// GetAnalytics returns aggregated bot traffic over the given number of days.
func (r *Reader) GetAnalytics(ctx context.Context, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	baseArgs := []any{clickhouse.Named("range_start", rangeStart)}
	result := &AnalyticsResult{}

	var total, bots, review, blocks uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total, "+
			"countIf(is_bot = 1) as bots, "+
			"countIf(needs_review = 1) as review, "+
			"countIf(verdict = 'block') as blocks "+
			"FROM detection_events WHERE timestamp >= @range_start",
		baseArgs...,
	).Scan(&total, &bots, &review, &blocks)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalDetections: int(total),
		Bots:            int(bots),
		Humans:          int(total - bots),
		NeedsReview:     int(review),
		Blocks:          int(blocks),
	}

	hourRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM detection_events "+
			"WHERE is_bot = 1 AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics bots_over_time: %w", err)
	}
	defer func() { _ = hourRows.Close() }()
	for hourRows.Next() {
		var hour time.Time
		var count uint64
		if err := hourRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics bots_over_time scan: %w", err)
		}
		result.BotsOverTime = append(result.BotsOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	agentRows, err := r.conn.Query(ctx,
		"SELECT bot_name, any(bot_category) as category, count() as count "+
			"FROM detection_events "+
			"WHERE is_bot = 1 AND bot_name != '' AND timestamp >= @range_start "+
			"GROUP BY bot_name ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_agents: %w", err)
	}
	defer func() { _ = agentRows.Close() }()
	for agentRows.Next() {
		var a AgentCount
		var count uint64
		if err := agentRows.Scan(&a.BotName, &a.Category, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_agents scan: %w", err)
		}
		a.Count = int(count)
		result.TopAgents = append(result.TopAgents, a)
	}

	if result.Methods, err = r.labelCounts(ctx, "method", "is_bot = 1", baseArgs); err != nil {
		return nil, fmt.Errorf("GetAnalytics methods: %w", err)
	}
	if result.IPVerification, err = r.labelCounts(ctx, "ip_verification", "ip_verification != ''", baseArgs); err != nil {
		return nil, fmt.Errorf("GetAnalytics ip_verification: %w", err)
	}

	// Latency percentiles (last 24h)
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms) as p50, "+
			"quantile(0.95)(latency_ms) as p95, "+
			"quantile(0.99)(latency_ms) as p99 "+
			"FROM detection_events WHERE timestamp >= @day_start",
		clickhouse.Named("day_start", dayStart),
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	result.fillEmpty()
	return result, nil
}

// labelCounts groups matching events by a low-cardinality column.
func (r *Reader) labelCounts(ctx context.Context, column, cond string, args []any) ([]LabelCount, error) {
	rows, err := r.conn.Query(ctx,
		fmt.Sprintf("SELECT %[1]s as label, count() as count FROM detection_events "+
			"WHERE %[2]s AND timestamp >= @range_start "+
			"GROUP BY %[1]s ORDER BY count DESC", column, cond),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		var count uint64
		if err := rows.Scan(&lc.Label, &count); err != nil {
			return nil, err
		}
		lc.Count = int(count)
		out = append(out, lc)
	}
	return out, rows.Err()
}

// fillEmpty makes slices non-nil for JSON serialization.
func (a *AnalyticsResult) fillEmpty() {
	if a.BotsOverTime == nil {
		a.BotsOverTime = []TimeSeriesBucket{}
	}
	if a.TopAgents == nil {
		a.TopAgents = []AgentCount{}
	}
	if a.Methods == nil {
		a.Methods = []LabelCount{}
	}
	if a.IPVerification == nil {
		a.IPVerification = []LabelCount{}
	}
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
