package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Mansoor88-6/site-analytics/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeConn implements the parts of driver.Conn the event log uses
type fakeConn struct {
	driver.Conn

	mu         sync.Mutex
	prepareErr error
	sendErr    error
	batches    []*fakeBatch

	queryErr  error
	query     string
	queryArgs []any
	rows      []models.LogRecord
	metadata  []string
}

func (c *fakeConn) PrepareBatch(_ context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prepareErr != nil {
		return nil, c.prepareErr
	}
	b := &fakeBatch{query: query, sendErr: c.sendErr}
	c.batches = append(c.batches, b)
	return b, nil
}

func (c *fakeConn) Query(_ context.Context, query string, args ...any) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query, c.queryArgs = query, args
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return &fakeRows{records: c.rows, metadata: c.metadata, pos: -1}, nil
}

func (c *fakeConn) sent() []*fakeBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeBatch(nil), c.batches...)
}

type fakeBatch struct {
	driver.Batch

	query   string
	rows    [][]any
	sent    bool
	sendErr error
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = true
	return nil
}

type fakeRows struct {
	driver.Rows

	records  []models.LogRecord
	metadata []string
	pos      int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.records)
}

func (r *fakeRows) Scan(dest ...any) error {
	rec := r.records[r.pos]
	*dest[0].(*string) = rec.ID
	*dest[1].(*string) = string(rec.Kind)
	*dest[2].(*string) = rec.SessionID
	*dest[3].(*string) = rec.Path
	*dest[4].(**string) = rec.Referer
	*dest[5].(**int64) = rec.DurationSeconds
	*dest[6].(*string) = string(rec.InteractionType)
	*dest[7].(**string) = rec.Element
	*dest[8].(**string) = rec.Value
	*dest[9].(*string) = r.metadata[r.pos]
	*dest[10].(*string) = rec.UserAgent
	*dest[11].(*string) = rec.Location
	*dest[12].(*time.Time) = rec.Timestamp
	return nil
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

type failedBatches struct {
	mu      sync.Mutex
	records []models.LogRecord
}

func (f *failedBatches) add(records []models.LogRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
}

func TestClickHouseEventLog_AppendWritesBatches(t *testing.T) {
	conn := &fakeConn{}
	var failed failedBatches
	l := NewClickHouseEventLog(conn, 2, 0, failed.add, zap.NewNop())

	at := time.Date(2025, 6, 10, 11, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	secs := int64(45)
	require.NoError(t, l.Append(context.Background(),
		models.LogRecord{Kind: models.KindPageView, SessionID: "s1", Path: "/", Timestamp: at},
		models.LogRecord{ID: "d1", Kind: models.KindDuration, SessionID: "s1", Path: "/", DurationSeconds: &secs, Timestamp: at},
	))

	batches := conn.sent()
	require.Len(t, batches, 1, "a full batch is written without waiting for Close")
	assert.Equal(t, "INSERT INTO events", batches[0].query)
	assert.True(t, batches[0].sent)
	require.Len(t, batches[0].rows, 2)

	view := batches[0].rows[0]
	assert.NotEmpty(t, view[0], "missing ids are generated")
	assert.Equal(t, "page_view", view[1])
	assert.Equal(t, "", view[9], "empty metadata is stored as an empty string")
	assert.Equal(t, at.UTC(), view[12])
	assert.Equal(t, time.UTC, view[12].(time.Time).Location())
	assert.Equal(t, "d1", batches[0].rows[1][0])

	require.NoError(t, l.Append(context.Background(), models.LogRecord{
		ID: "i1", Kind: models.KindInteraction, SessionID: "s1", Path: "/",
		InteractionType: models.InteractionButtonClick, Metadata: map[string]any{"section": "hero"}, Timestamp: at,
	}))
	l.Close()

	batches = conn.sent()
	require.Len(t, batches, 2, "Close flushes the partial batch")
	assert.JSONEq(t, `{"section":"hero"}`, batches[1].rows[0][9].(string))
	assert.Empty(t, failed.records)
}

func TestClickHouseEventLog_FailedBatchesAreHandedOff(t *testing.T) {
	tests := map[string]*fakeConn{
		"prepare": {prepareErr: errors.New("connection reset")},
		"send":    {sendErr: errors.New("too many parts")},
	}

	for name, conn := range tests {
		t.Run(name, func(t *testing.T) {
			var failed failedBatches
			l := NewClickHouseEventLog(conn, 10, 0, failed.add, zap.NewNop())

			require.NoError(t, l.Append(context.Background(),
				models.LogRecord{ID: "a", Kind: models.KindPageView, SessionID: "s1", Path: "/", Timestamp: time.Now()},
				models.LogRecord{ID: "b", Kind: models.KindPageView, SessionID: "s1", Path: "/x", Timestamp: time.Now()},
			))
			l.Close()

			require.Len(t, failed.records, 2)
			assert.Equal(t, "a", failed.records[0].ID)
			assert.Equal(t, "b", failed.records[1].ID)
		})
	}
}

func TestClickHouseEventLog_Scan(t *testing.T) {
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	referer := "https://www.google.com/"
	secs := int64(30)
	element := "cv"

	conn := &fakeConn{
		rows: []models.LogRecord{
			{ID: "v1", Kind: models.KindPageView, SessionID: "s1", Path: "/", Referer: &referer, UserAgent: "ua", Location: "NL", Timestamp: at},
			{ID: "d1", Kind: models.KindDuration, SessionID: "s1", Path: "/", DurationSeconds: &secs, Timestamp: at.Add(31 * time.Second)},
			{ID: "i1", Kind: models.KindInteraction, SessionID: "s1", Path: "/", InteractionType: models.InteractionDownload, Element: &element, Timestamp: at.Add(time.Minute)},
		},
		metadata: []string{"", "", `{"size":1024}`},
	}
	l := NewClickHouseEventLog(conn, 10, 0, nil, zap.NewNop())
	defer l.Close()

	start, end := at.Add(-time.Hour), at.Add(time.Hour)
	records, err := l.Scan(context.Background(), start, end)
	require.NoError(t, err)

	assert.Contains(t, conn.query, "FROM events FINAL")
	assert.Contains(t, conn.query, "occurred_at >= ?")
	assert.Contains(t, conn.query, "occurred_at < ?")
	assert.Contains(t, conn.query, "ORDER BY occurred_at ASC")
	assert.Equal(t, []any{start, end}, conn.queryArgs)

	require.Len(t, records, 3)
	assert.Equal(t, models.KindPageView, records[0].Kind)
	assert.Equal(t, referer, *records[0].Referer)
	assert.Equal(t, "NL", records[0].Location)
	assert.Equal(t, secs, *records[1].DurationSeconds)
	assert.Equal(t, models.InteractionDownload, records[2].InteractionType)
	assert.Nil(t, records[0].Metadata)
	assert.Equal(t, float64(1024), records[2].Metadata["size"])
}

func TestClickHouseEventLog_ScanErrors(t *testing.T) {
	conn := &fakeConn{queryErr: errors.New("timeout")}
	l := NewClickHouseEventLog(conn, 10, 0, nil, zap.NewNop())
	defer l.Close()

	_, err := l.Scan(context.Background(), time.Now().Add(-time.Hour), time.Now())
	assert.ErrorContains(t, err, "failed to query events")

	conn.queryErr = nil
	conn.rows = []models.LogRecord{{ID: "bad", Kind: models.KindInteraction, Timestamp: time.Now()}}
	conn.metadata = []string{"{not json"}
	_, err = l.Scan(context.Background(), time.Now().Add(-time.Hour), time.Now())
	assert.ErrorContains(t, err, "failed to decode metadata of event bad")
}
