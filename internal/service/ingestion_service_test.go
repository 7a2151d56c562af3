package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"Mansoor88-6/site-analytics/internal/metrics"
	"Mansoor88-6/site-analytics/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryLog is an EventLog kept in a slice
type memoryLog struct {
	mu      sync.Mutex
	records []models.LogRecord
	err     error
}

func (l *memoryLog) Append(_ context.Context, records ...models.LogRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, records...)
	return nil
}

func (l *memoryLog) Scan(_ context.Context, start, end time.Time) ([]models.LogRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	out := make([]models.LogRecord, 0)
	for _, rec := range l.records {
		if !rec.Timestamp.Before(start) && rec.Timestamp.Before(end) {
			out = append(out, rec)
		}
	}
	return out, nil
}

type recordingSpool struct {
	records []models.LogRecord
	err     error
}

func (s *recordingSpool) Enqueue(_ context.Context, records []models.LogRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

// recordingLive tracks presence with a set and collects published activity
type recordingLive struct {
	seen      map[string]bool
	published []models.LiveActivity
}

func newRecordingLive() *recordingLive {
	return &recordingLive{seen: map[string]bool{}}
}

func (l *recordingLive) Touch(_ context.Context, sessionID string) bool {
	was := l.seen[sessionID]
	l.seen[sessionID] = true
	return was
}

func (l *recordingLive) Publish(a models.LiveActivity) {
	l.published = append(l.published, a)
}

var ingestNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func newIngestion(log *memoryLog, spool Spool, live *recordingLive) *IngestionService {
	return NewIngestionService(log, spool, live, metrics.NewMetrics(), zap.NewNop(), func() time.Time { return ingestNow })
}

func ptr[T any](v T) *T { return &v }

func TestIngestion_PageView(t *testing.T) {
	log, live := &memoryLog{}, newRecordingLive()
	s := newIngestion(log, nil, live)
	meta := models.RequestMeta{UserAgent: "Mozilla/5.0", Location: "NL"}

	result, err := s.TrackPageView(context.Background(), models.TrackPageViewRequest{
		Path: " /about ", SessionID: "s1", Referer: ptr("https://www.google.com/"),
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, Recorded, result)

	result, err = s.TrackPageView(context.Background(), models.TrackPageViewRequest{
		Path: "/projects", SessionID: "s1", Referer: ptr("  "),
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, Recorded, result)

	require.Len(t, log.records, 2)
	first := log.records[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.KindPageView, first.Kind)
	assert.Equal(t, "/about", first.Path)
	assert.Equal(t, "https://www.google.com/", *first.Referer)
	assert.Equal(t, "Mozilla/5.0", first.UserAgent)
	assert.Equal(t, "NL", first.Location)
	assert.True(t, ingestNow.Equal(first.Timestamp))
	assert.Nil(t, log.records[1].Referer)
	assert.NotEqual(t, first.ID, log.records[1].ID)

	require.Len(t, live.published, 2)
	assert.Equal(t, models.ActivityVisit, live.published[0].Type)
	assert.Equal(t, models.ActivityPageView, live.published[1].Type)
	assert.Equal(t, "/projects", live.published[1].Page)
}

func TestIngestion_Validation(t *testing.T) {
	log := &memoryLog{}
	s := newIngestion(log, nil, newRecordingLive())
	ctx := context.Background()

	_, err := s.TrackPageView(ctx, models.TrackPageViewRequest{Path: "/"}, models.RequestMeta{})
	assert.ErrorIs(t, err, ErrMissingSessionID)

	_, err = s.TrackPageView(ctx, models.TrackPageViewRequest{SessionID: "s1", Path: "  "}, models.RequestMeta{})
	assert.ErrorIs(t, err, ErrMissingPath)

	_, err = s.TrackPageView(ctx, models.TrackPageViewRequest{SessionID: "s1", Duration: ptr(10.0)}, models.RequestMeta{})
	assert.ErrorIs(t, err, ErrMissingPath)

	assert.Empty(t, log.records)
}

func TestIngestion_Duration(t *testing.T) {
	log, live := &memoryLog{}, newRecordingLive()
	s := newIngestion(log, nil, live)
	ctx := context.Background()

	for _, secs := range []float64{0, 0.999, -5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		result, err := s.TrackPageView(ctx, models.TrackPageViewRequest{
			Path: "/", SessionID: "s1", Duration: ptr(secs),
		}, models.RequestMeta{})
		require.NoError(t, err)
		assert.Equal(t, Discarded, result, "duration %v", secs)
	}
	assert.Empty(t, log.records)

	result, err := s.TrackPageView(ctx, models.TrackPageViewRequest{
		Path: "/projects/alpha", SessionID: "s1", Duration: ptr(45.7),
	}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, Recorded, result)

	require.Len(t, log.records, 1)
	rec := log.records[0]
	assert.Equal(t, models.KindDuration, rec.Kind)
	assert.Equal(t, "/projects/alpha", rec.Path)
	require.NotNil(t, rec.DurationSeconds)
	assert.Equal(t, int64(45), *rec.DurationSeconds)

	// Durations refresh presence but are not shown as activity
	assert.True(t, live.seen["s1"])
	assert.Empty(t, live.published)
}

func TestIngestion_Interaction(t *testing.T) {
	log, live := &memoryLog{}, newRecordingLive()
	s := newIngestion(log, nil, live)
	ctx := context.Background()

	result, err := s.TrackInteraction(ctx, models.TrackInteractionRequest{
		Type: "download", Element: ptr("cv"), Value: ptr(" "), SessionID: "s1", Path: "/about",
		Metadata: map[string]any{"size": 1024},
	}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, Recorded, result)

	_, err = s.TrackInteraction(ctx, models.TrackInteractionRequest{
		Type: "confetti", SessionID: "s1", Path: "/",
	}, models.RequestMeta{})
	require.NoError(t, err)

	require.Len(t, log.records, 2)
	download := log.records[0]
	assert.Equal(t, models.KindInteraction, download.Kind)
	assert.Equal(t, models.InteractionDownload, download.InteractionType)
	assert.Equal(t, "cv", *download.Element)
	assert.Nil(t, download.Value)
	assert.Equal(t, 1024, download.Metadata["size"])

	assert.Equal(t, models.InteractionCustomEvent, log.records[1].InteractionType)

	require.Len(t, live.published, 2)
	assert.Equal(t, models.ActivityDownload, live.published[0].Type)
	assert.Equal(t, "download:cv", live.published[0].Action)
	assert.Equal(t, models.ActivityInteraction, live.published[1].Type)
	assert.Equal(t, "custom_event", live.published[1].Action)
}

func TestIngestion_InteractionWithoutSession(t *testing.T) {
	log, live := &memoryLog{}, newRecordingLive()
	s := newIngestion(log, nil, live)

	result, err := s.TrackInteraction(context.Background(), models.TrackInteractionRequest{
		Type: "external_link", Element: ptr("github"),
	}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, Recorded, result)

	require.Len(t, log.records, 1)
	assert.Empty(t, log.records[0].SessionID)
	assert.Empty(t, live.seen, "session-less interactions never reach presence")
	require.Len(t, live.published, 1)
	assert.Equal(t, "external_link:github", live.published[0].Action)
}

func TestIngestion_SpoolsFailedAppends(t *testing.T) {
	log := &memoryLog{err: errors.New("disk I/O error")}
	spool := &recordingSpool{}
	live := newRecordingLive()
	s := newIngestion(log, spool, live)

	result, err := s.TrackPageView(context.Background(), models.TrackPageViewRequest{
		Path: "/", SessionID: "s1",
	}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, Spooled, result)

	require.Len(t, spool.records, 1)
	assert.NotEmpty(t, spool.records[0].ID)
	assert.Len(t, live.published, 1, "spooled records are still live")
}

func TestIngestion_FailsWithoutSpool(t *testing.T) {
	log := &memoryLog{err: errors.New("disk I/O error")}
	live := newRecordingLive()
	s := newIngestion(log, nil, live)

	_, err := s.TrackPageView(context.Background(), models.TrackPageViewRequest{
		Path: "/", SessionID: "s1",
	}, models.RequestMeta{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Empty(t, live.published)

	spool := &recordingSpool{err: errors.New("spool full")}
	s = newIngestion(log, spool, live)
	_, err = s.TrackInteraction(context.Background(), models.TrackInteractionRequest{
		Type: "button_click", SessionID: "s1", Path: "/",
	}, models.RequestMeta{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spool full")
}

func TestIngestion_SpoolFailed(t *testing.T) {
	spool := &recordingSpool{}
	s := newIngestion(&memoryLog{}, spool, newRecordingLive())

	s.SpoolFailed([]models.LogRecord{{ID: "a"}, {ID: "b"}})
	assert.Len(t, spool.records, 2)

	noSpool := newIngestion(&memoryLog{}, nil, newRecordingLive())
	assert.NotPanics(t, func() { noSpool.SpoolFailed([]models.LogRecord{{ID: "c"}}) })
}
