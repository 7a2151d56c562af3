package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"Mansoor88-6/site-analytics/internal/metrics"
	"Mansoor88-6/site-analytics/internal/models"
	"Mansoor88-6/site-analytics/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMissingSessionID = errors.New("sessionId is required")
	ErrMissingPath      = errors.New("path is required")
)

// IngestResult says what happened to a submission
type IngestResult int

const (
	// Recorded means the record is in the event log
	Recorded IngestResult = iota
	// Spooled means the log append failed and the record waits for replay
	Spooled
	// Discarded means the submission was valid but not worth recording
	Discarded
)

// LiveChannel receives the live projection of ingested records
type LiveChannel interface {
	Touch(ctx context.Context, sessionID string) bool
	Publish(activity models.LiveActivity)
}

// Spool holds records whose append failed
type Spool interface {
	Enqueue(ctx context.Context, records []models.LogRecord) error
}

// IngestionService turns tracker submissions into log records, appends them
// and feeds the real-time channel
type IngestionService struct {
	log     repository.EventLog
	spool   Spool
	live    LiveChannel
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewIngestionService creates the service. spool may be nil, in which case
// a failed append is returned to the caller.
func NewIngestionService(
	log repository.EventLog,
	spool Spool,
	live LiveChannel,
	m *metrics.Metrics,
	logger *zap.Logger,
	now func() time.Time,
) *IngestionService {
	if now == nil {
		now = time.Now
	}
	return &IngestionService{
		log:     log,
		spool:   spool,
		live:    live,
		metrics: m,
		logger:  logger,
		now:     now,
	}
}

// TrackPageView records a page view, or a duration follow-up when the
// request carries a duration
func (s *IngestionService) TrackPageView(ctx context.Context, req models.TrackPageViewRequest, meta models.RequestMeta) (IngestResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	path := strings.TrimSpace(req.Path)
	if sessionID == "" {
		return Discarded, ErrMissingSessionID
	}
	if path == "" {
		return Discarded, ErrMissingPath
	}

	if req.Duration != nil {
		return s.trackDuration(ctx, sessionID, path, *req.Duration, meta)
	}

	rec := s.newRecord(models.KindPageView, sessionID, path, meta)
	if req.Referer != nil && strings.TrimSpace(*req.Referer) != "" {
		referer := strings.TrimSpace(*req.Referer)
		rec.Referer = &referer
	}

	result, err := s.append(ctx, rec)
	if err != nil {
		return result, err
	}

	activityType := models.ActivityPageView
	if !s.live.Touch(ctx, sessionID) {
		activityType = models.ActivityVisit
	}
	s.live.Publish(models.LiveActivity{
		Type:      activityType,
		Page:      path,
		Timestamp: rec.Timestamp,
		UserAgent: meta.UserAgent,
		Location:  meta.Location,
	})

	return result, nil
}

func (s *IngestionService) trackDuration(ctx context.Context, sessionID, path string, seconds float64, meta models.RequestMeta) (IngestResult, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < models.MinDurationSeconds {
		s.logger.Debug("Discarding short duration",
			zap.String("session_id", sessionID),
			zap.String("path", path),
			zap.Float64("seconds", seconds),
		)
		return Discarded, nil
	}

	secs := int64(math.Min(math.Floor(seconds), math.MaxInt32))
	rec := s.newRecord(models.KindDuration, sessionID, path, meta)
	rec.DurationSeconds = &secs

	result, err := s.append(ctx, rec)
	if err != nil {
		return result, err
	}

	s.live.Touch(ctx, sessionID)
	return result, nil
}

// TrackInteraction records an interaction. Unknown types become custom
// events. An interaction without a session id is still recorded; it counts
// toward interaction totals but never toward sessions or presence.
func (s *IngestionService) TrackInteraction(ctx context.Context, req models.TrackInteractionRequest, meta models.RequestMeta) (IngestResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)

	rec := s.newRecord(models.KindInteraction, sessionID, strings.TrimSpace(req.Path), meta)
	rec.InteractionType = models.ParseInteractionType(req.Type)
	rec.Element = nonEmpty(req.Element)
	rec.Value = nonEmpty(req.Value)
	if len(req.Metadata) > 0 {
		rec.Metadata = req.Metadata
	}

	result, err := s.append(ctx, rec)
	if err != nil {
		return result, err
	}

	if sessionID != "" {
		s.live.Touch(ctx, sessionID)
	}

	activity := models.LiveActivity{
		Type:      models.ActivityInteraction,
		Page:      rec.Path,
		Action:    string(rec.InteractionType),
		Timestamp: rec.Timestamp,
		UserAgent: meta.UserAgent,
		Location:  meta.Location,
	}
	if rec.InteractionType == models.InteractionDownload {
		activity.Type = models.ActivityDownload
	}
	if rec.Element != nil {
		activity.Action += ":" + *rec.Element
	}
	s.live.Publish(activity)

	return result, nil
}

func (s *IngestionService) newRecord(kind models.RecordKind, sessionID, path string, meta models.RequestMeta) models.LogRecord {
	return models.LogRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: sessionID,
		Path:      path,
		UserAgent: meta.UserAgent,
		Location:  meta.Location,
		Timestamp: s.now().UTC(),
	}
}

// append writes to the log and falls back to the spool
func (s *IngestionService) append(ctx context.Context, rec models.LogRecord) (IngestResult, error) {
	err := s.log.Append(ctx, rec)
	if err == nil {
		s.metrics.IncRecordsIngested(string(rec.Kind))
		return Recorded, nil
	}

	s.metrics.IncIngestFailures()
	if s.spool == nil {
		return Discarded, fmt.Errorf("failed to append %s record: %w", rec.Kind, err)
	}

	s.logger.Warn("Failed to append record, spooling locally",
		zap.Error(err),
		zap.String("kind", string(rec.Kind)),
		zap.String("session_id", rec.SessionID),
	)

	if spoolErr := s.spool.Enqueue(ctx, []models.LogRecord{rec}); spoolErr != nil {
		s.logger.Error("Failed to spool record", zap.Error(spoolErr))
		return Discarded, fmt.Errorf("failed to append %s record: %w", rec.Kind, errors.Join(err, spoolErr))
	}

	s.metrics.AddRecordsSpooled(1)
	return Spooled, nil
}

// SpoolFailed spools a batch that an asynchronous log writer could not
// persist
func (s *IngestionService) SpoolFailed(records []models.LogRecord) {
	if s.spool == nil {
		s.logger.Error("Dropping records after failed write, spool disabled", zap.Int("count", len(records)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.spool.Enqueue(ctx, records); err != nil {
		s.logger.Error("Failed to spool records after failed write",
			zap.Error(err),
			zap.Int("count", len(records)),
		)
		return
	}
	s.metrics.AddRecordsSpooled(len(records))
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
