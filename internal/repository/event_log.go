package repository

import (
	"context"
	"time"

	"Mansoor88-6/site-analytics/internal/models"
)

// EventLog is the durable, append-only store of tracking records.
// No update or delete operation exists.
type EventLog interface {
	// Append writes records in order. Records without an ID get one.
	Append(ctx context.Context, records ...models.LogRecord) error

	// Scan returns every record with start <= timestamp < end, ordered by
	// timestamp. The result is a consistent read of the log at call time.
	Scan(ctx context.Context, start, end time.Time) ([]models.LogRecord, error)
}

// ContactSource exposes contact form submissions owned by the site's CRUD layer
type ContactSource interface {
	// ContactSubmissions returns the creation times of submissions in [start, end)
	ContactSubmissions(ctx context.Context, start, end time.Time) ([]time.Time, error)
}
