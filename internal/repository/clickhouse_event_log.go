package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Mansoor88-6/site-analytics/internal/collector"
	"Mansoor88-6/site-analytics/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClickHouseEventLog writes the event log to ClickHouse in batches.
// Append only buffers; records reach the table on the next flush, so reads
// may lag ingestion by up to the flush interval.
type ClickHouseEventLog struct {
	conn      clickhouse.Conn
	collector *collector.EventCollector[models.LogRecord]
	onFailed  func([]models.LogRecord)
	logger    *zap.Logger
}

// NewClickHouseEventLog creates the log. onFailed receives batches that
// could not be written, typically to spool them for replay.
func NewClickHouseEventLog(
	conn clickhouse.Conn,
	batchSize int,
	flushInterval time.Duration,
	onFailed func([]models.LogRecord),
	logger *zap.Logger,
) *ClickHouseEventLog {
	l := &ClickHouseEventLog{
		conn:      conn,
		collector: collector.NewEventCollector[models.LogRecord](batchSize, flushInterval, logger),
		onFailed:  onFailed,
		logger:    logger,
	}
	l.collector.Start(l.writeBatch)
	return l
}

func (l *ClickHouseEventLog) Append(ctx context.Context, records ...models.LogRecord) error {
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
	}
	l.collector.Add(records...)
	return nil
}

// Close flushes buffered records
func (l *ClickHouseEventLog) Close() {
	l.collector.Stop()
}

func (l *ClickHouseEventLog) writeBatch(records []models.LogRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := l.insert(ctx, records); err != nil {
		l.logger.Error("Failed to write event batch to ClickHouse",
			zap.Error(err),
			zap.Int("event_count", len(records)),
		)
		if l.onFailed != nil {
			l.onFailed(records)
		}
		return
	}

	l.logger.Debug("Event batch written to ClickHouse", zap.Int("event_count", len(records)))
}

func (l *ClickHouseEventLog) insert(ctx context.Context, records []models.LogRecord) error {
	batch, err := l.conn.PrepareBatch(ctx, "INSERT INTO events")
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, rec := range records {
		metadata := ""
		if len(rec.Metadata) > 0 {
			data, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata of event %s: %w", rec.ID, err)
			}
			metadata = string(data)
		}

		err := batch.Append(
			rec.ID,
			string(rec.Kind),
			rec.SessionID,
			rec.Path,
			rec.Referer,
			rec.DurationSeconds,
			string(rec.InteractionType),
			rec.Element,
			rec.Value,
			metadata,
			rec.UserAgent,
			rec.Location,
			rec.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s to batch: %w", rec.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (l *ClickHouseEventLog) Scan(ctx context.Context, start, end time.Time) ([]models.LogRecord, error) {
	query, args, err := sq.Select(eventColumns...).
		From("events FINAL").
		Where(sq.GtOrEq{"occurred_at": start.UTC()}).
		Where(sq.Lt{"occurred_at": end.UTC()}).
		OrderBy("occurred_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build scan query: %w", err)
	}

	rows, err := l.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	records := make([]models.LogRecord, 0)
	for rows.Next() {
		var (
			rec             models.LogRecord
			kind            string
			interactionType string
			metadata        string
		)
		err := rows.Scan(
			&rec.ID,
			&kind,
			&rec.SessionID,
			&rec.Path,
			&rec.Referer,
			&rec.DurationSeconds,
			&interactionType,
			&rec.Element,
			&rec.Value,
			&metadata,
			&rec.UserAgent,
			&rec.Location,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		rec.Kind = models.RecordKind(kind)
		rec.InteractionType = models.InteractionType(interactionType)
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of event %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}
