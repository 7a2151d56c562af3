package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"Mansoor88-6/site-analytics/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// eventColumns lists columns in scan order
var eventColumns = []string{
	"id", "kind", "session_id", "path", "referer", "duration_seconds",
	"interaction_type", "element", "value", "metadata", "user_agent",
	"location", "occurred_at",
}

// SQLiteEventLog stores the event log in the local sqlite database.
// Timestamps are kept as unix milliseconds. Appending a record whose id is
// already stored is a no-op, so spool replays are idempotent.
type SQLiteEventLog struct {
	db *sql.DB
}

func NewSQLiteEventLog(db *sql.DB) *SQLiteEventLog {
	return &SQLiteEventLog{db: db}
}

func (r *SQLiteEventLog) Append(ctx context.Context, records ...models.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events (id, kind, session_id, path, referer, duration_seconds,
			interaction_type, element, value, metadata, user_agent, location, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}

		metadata, err := encodeMetadata(rec.Metadata)
		if err != nil {
			return err
		}

		_, err = stmt.ExecContext(ctx,
			rec.ID,
			string(rec.Kind),
			rec.SessionID,
			rec.Path,
			rec.Referer,
			rec.DurationSeconds,
			nullIfEmpty(string(rec.InteractionType)),
			rec.Element,
			rec.Value,
			metadata,
			rec.UserAgent,
			rec.Location,
			rec.Timestamp.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteEventLog) Scan(ctx context.Context, start, end time.Time) ([]models.LogRecord, error) {
	query, args, err := sq.Select(eventColumns...).
		From("events").
		Where(sq.GtOrEq{"occurred_at": start.UnixMilli()}).
		Where(sq.Lt{"occurred_at": end.UnixMilli()}).
		OrderBy("occurred_at ASC", "rowid ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build scan query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	records := make([]models.LogRecord, 0)
	for rows.Next() {
		var (
			rec             models.LogRecord
			kind            string
			interactionType sql.NullString
			metadata        sql.NullString
			occurredAt      int64
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
			&occurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		rec.Kind = models.RecordKind(kind)
		rec.InteractionType = models.InteractionType(interactionType.String)
		rec.Timestamp = time.UnixMilli(occurredAt).UTC()
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of event %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// SQLiteContactSource reads the contact_submissions table
type SQLiteContactSource struct {
	db *sql.DB
}

func NewSQLiteContactSource(db *sql.DB) *SQLiteContactSource {
	return &SQLiteContactSource{db: db}
}

func (r *SQLiteContactSource) ContactSubmissions(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	query, args, err := sq.Select("created_at").
		From("contact_submissions").
		Where(sq.GtOrEq{"created_at": start.UnixMilli()}).
		Where(sq.Lt{"created_at": end.UnixMilli()}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build contact query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact submissions: %w", err)
	}
	defer rows.Close()

	times := make([]time.Time, 0)
	for rows.Next() {
		var createdAt int64
		if err := rows.Scan(&createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact submission: %w", err)
		}
		times = append(times, time.UnixMilli(createdAt).UTC())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return times, nil
}

func encodeMetadata(metadata map[string]any) (*string, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	s := string(data)
	return &s, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
