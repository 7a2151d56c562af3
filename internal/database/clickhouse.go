package database

import (
	"context"
	"fmt"
	"time"

	"Mansoor88-6/site-analytics/internal/config"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

// ClickHouse is a native-protocol connection used by the scale-out event log
type ClickHouse struct {
	Conn   clickhouse.Conn
	logger *zap.Logger
}

// NewClickHouse connects, pings and makes sure the events table exists
func NewClickHouse(cfg config.ClickHouseConfig, logger *zap.Logger) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "site-analytics", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	ch := &ClickHouse{Conn: conn, logger: logger}
	if err := ch.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run clickhouse migrations: %w", err)
	}

	logger.Info("ClickHouse connection established", zap.Strings("addr", cfg.Addr))
	return ch, nil
}

// migrate creates the events table. Rows sharing a sorting key collapse on
// merge, so a replayed record (same id and timestamp) is stored once;
// readers use FINAL to see that before the merge happens.
func (c *ClickHouse) migrate(ctx context.Context) error {
	return c.Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id String,
			kind LowCardinality(String),
			session_id String,
			path String,
			referer Nullable(String),
			duration_seconds Nullable(Int64),
			interaction_type LowCardinality(String),
			element Nullable(String),
			value Nullable(String),
			metadata String,
			user_agent String,
			location LowCardinality(String),
			occurred_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree
		PARTITION BY toYYYYMM(occurred_at)
		ORDER BY (occurred_at, session_id, id)
	`)
}

func (c *ClickHouse) Close() error {
	if err := c.Conn.Close(); err != nil {
		return fmt.Errorf("failed to close clickhouse connection: %w", err)
	}
	c.logger.Info("ClickHouse connection closed")
	return nil
}
