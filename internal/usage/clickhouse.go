package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	createUsageTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id             UUID,
	user_id        String,
	service        LowCardinality(String),
	model          LowCardinality(String),
	input_tokens   UInt32,
	output_tokens  UInt32,
	estimated_cost Float64,
	latency_ms     UInt32,
	success        Bool,
	cached         Bool,
	tier           LowCardinality(String),
	created_at     DateTime64(3, 'UTC')
) ENGINE = MergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (user_id, created_at)`

	createAuditTable = `
CREATE TABLE IF NOT EXISTS funnel_analysis_logs (
	id                UUID,
	user_id           String,
	ad_text           String,
	landing_page_text String,
	score             Float64,
	suggestions       Array(String),
	optimized_ad      String,
	processing_ms     UInt32,
	tier              LowCardinality(String),
	created_at        DateTime64(3, 'UTC')
) ENGINE = MergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (user_id, created_at)`
)

// ClickHouseSink appends batches to ClickHouse tables.
type ClickHouseSink struct {
	conn driver.Conn
}

// OpenClickHouse connects to dsn, verifies the connection and creates the
// tables when missing.
func OpenClickHouse(ctx context.Context, dsn string) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("usage: parse clickhouse dsn: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("usage: open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("usage: ping clickhouse: %w", err)
	}

	s := &ClickHouseSink{conn: conn}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// NewClickHouseSink wraps an open connection.
func NewClickHouseSink(conn driver.Conn) *ClickHouseSink {
	return &ClickHouseSink{conn: conn}
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) EnsureSchema(ctx context.Context) error {
	for _, ddl := range []string{createUsageTable, createAuditTable} {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("usage: create clickhouse table: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseSink) WriteUsage(ctx context.Context, records []Record) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO usage_records")
	if err != nil {
		return fmt.Errorf("usage: prepare usage batch: %w", err)
	}
	for _, e := range records {
		if err := batch.Append(
			e.ID,
			e.UserID,
			e.Service,
			e.Model,
			uint32(e.InputTokens),
			uint32(e.OutputTokens),
			e.EstimatedCost,
			clampUint32(e.LatencyMs),
			e.Success,
			e.Cached,
			e.Tier,
			e.CreatedAt,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("usage: append usage row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("usage: send usage batch: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) WriteAudit(ctx context.Context, entries []AuditEntry) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO funnel_analysis_logs")
	if err != nil {
		return fmt.Errorf("usage: prepare audit batch: %w", err)
	}
	for _, e := range entries {
		if err := batch.Append(
			e.ID,
			e.UserID,
			e.AdText,
			e.LandingPageText,
			e.Score,
			e.Suggestions,
			e.OptimizedAd,
			clampUint32(e.ProcessingMs),
			e.Tier,
			e.CreatedAt,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("usage: append audit row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("usage: send audit batch: %w", err)
	}
	return nil
}

// Ping reports whether ClickHouse answers.
func (s *ClickHouseSink) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}

func clampUint32(v int64) uint32 {
	switch {
	case v < 0:
		return 0
	case v > int64(^uint32(0)):
		return ^uint32(0)
	}
	return uint32(v)
}
