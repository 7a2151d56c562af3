package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"Mansoor88-6/site-analytics/internal/models"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
)

// maxRetries is the retry count after which an old spooled record is dropped
const maxRetries = 10

// EventQueue is a local spool of records whose append to the event log failed
type EventQueue struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewEventQueue creates a new event queue
func NewEventQueue(db *sql.DB, logger *zap.Logger) *EventQueue {
	return &EventQueue{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue spools records. Records that cannot be encoded are skipped.
func (eq *EventQueue) Enqueue(ctx context.Context, records []models.LogRecord) error {
	tx, err := eq.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pending_events (event_data, created_at, retry_count)
		VALUES (?, ?, 0)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	createdAt := eq.now().UnixMilli()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			eq.logger.Error("Failed to marshal record", zap.Error(err), zap.String("id", rec.ID))
			continue
		}

		if _, err := stmt.ExecContext(ctx, string(data), createdAt); err != nil {
			return fmt.Errorf("failed to enqueue record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	eq.logger.Debug("Records spooled", zap.Int("count", len(records)))
	return nil
}

// Dequeue returns the oldest spooled records with their spool ids, without
// removing them. Corrupted rows are deleted.
func (eq *EventQueue) Dequeue(ctx context.Context, limit int) ([]models.LogRecord, []int64, error) {
	rows, err := eq.db.QueryContext(ctx, `
		SELECT id, event_data
		FROM pending_events
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query pending events: %w", err)
	}

	var (
		records []models.LogRecord
		ids     []int64
		corrupt []int64
	)
	for rows.Next() {
		var id int64
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan pending event: %w", err)
		}

		var rec models.LogRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			eq.logger.Error("Failed to unmarshal spooled record", zap.Error(err), zap.Int64("id", id))
			corrupt = append(corrupt, id)
			continue
		}

		records = append(records, rec)
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("error iterating pending events: %w", err)
	}

	if err := eq.Remove(ctx, corrupt); err != nil {
		eq.logger.Warn("Failed to remove corrupted records", zap.Error(err))
	}

	return records, ids, nil
}

// Remove removes records from the spool by their ids
func (eq *EventQueue) Remove(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sq.Delete("pending_events").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	result, err := eq.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to remove records: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	eq.logger.Debug("Records removed from spool", zap.Int64("count", rowsAffected))
	return nil
}

// IncrementRetry bumps the retry count of records after a failed replay
func (eq *EventQueue) IncrementRetry(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sq.Update("pending_events").
		Set("retry_count", sq.Expr("retry_count + 1")).
		Set("last_attempt", eq.now().UnixMilli()).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	if _, err := eq.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}
	return nil
}

// PendingCount returns the number of spooled records
func (eq *EventQueue) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := eq.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return count, nil
}

// CleanupOldEvents drops records older than olderThan that kept failing
func (eq *EventQueue) CleanupOldEvents(ctx context.Context, olderThan time.Duration) error {
	cutoff := eq.now().Add(-olderThan).UnixMilli()
	result, err := eq.db.ExecContext(ctx, `
		DELETE FROM pending_events
		WHERE created_at < ? AND retry_count > ?
	`, cutoff, maxRetries)
	if err != nil {
		return fmt.Errorf("failed to cleanup old events: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		eq.logger.Info("Cleaned up old spooled records", zap.Int64("count", rowsAffected))
	}
	return nil
}
