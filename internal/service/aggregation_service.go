package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Mansoor88-6/site-analytics/internal/analytics"
	"Mansoor88-6/site-analytics/internal/metrics"
	"Mansoor88-6/site-analytics/internal/models"
	"Mansoor88-6/site-analytics/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownFacet is returned for a facet name the aggregate does not have
var ErrUnknownFacet = errors.New("unknown analytics facet")

// Facet names served by the narrow aggregate endpoints
const (
	FacetOverview           = "overview"
	FacetTrafficGrowth      = "traffic-growth"
	FacetDevices            = "devices"
	FacetBrowsers           = "browsers"
	FacetOperatingSystems   = "operating-systems"
	FacetTrafficSources     = "traffic-sources"
	FacetTopPages           = "top-pages"
	FacetContactSubmissions = "contact-submissions"
	FacetProjectEngagement  = "project-engagement"
)

// Facets lists every facet name in route order
var Facets = []string{
	FacetOverview,
	FacetTrafficGrowth,
	FacetDevices,
	FacetBrowsers,
	FacetOperatingSystems,
	FacetTrafficSources,
	FacetTopPages,
	FacetContactSubmissions,
	FacetProjectEngagement,
}

// ContactFacet is the contact-submissions facet with the CV download count
type ContactFacet struct {
	models.ContactSubmissions
	CVDownloads int64 `json:"cvDownloads"`
}

// AggregationService computes analytics aggregates from the event log.
// It only reads, so it runs alongside ingestion without any locking.
type AggregationService struct {
	log      repository.EventLog
	contacts repository.ContactSource
	engine   *analytics.Engine
	periods  *analytics.PeriodResolver
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewAggregationService creates the service. contacts may be nil when no
// CRUD layer is attached; contact counts are then zero.
func NewAggregationService(
	log repository.EventLog,
	contacts repository.ContactSource,
	engine *analytics.Engine,
	periods *analytics.PeriodResolver,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AggregationService {
	return &AggregationService{
		log:      log,
		contacts: contacts,
		engine:   engine,
		periods:  periods,
		metrics:  m,
		logger:   logger,
	}
}

// Comprehensive computes the full aggregate for the requested window
func (s *AggregationService) Comprehensive(ctx context.Context, q models.AnalyticsQuery) (*models.AnalyticsAggregate, error) {
	started := time.Now()

	agg, err := s.compute(ctx, q)
	if err != nil {
		s.metrics.ObserveAggregate("error", time.Since(started).Seconds())
		return nil, err
	}

	s.metrics.ObserveAggregate("ok", time.Since(started).Seconds())
	s.logger.Debug("Aggregate computed",
		zap.String("period", string(agg.Period)),
		zap.Time("start", agg.StartDate),
		zap.Time("end", agg.EndDate),
		zap.Int64("visitors", agg.Overview.TotalVisitors),
		zap.Duration("took", time.Since(started)),
	)
	return agg, nil
}

// Facet computes the aggregate and returns one named part of it
func (s *AggregationService) Facet(ctx context.Context, q models.AnalyticsQuery, facet string) (any, error) {
	agg, err := s.Comprehensive(ctx, q)
	if err != nil {
		return nil, err
	}

	switch facet {
	case FacetOverview:
		return agg.Overview, nil
	case FacetTrafficGrowth:
		return agg.TrafficGrowth, nil
	case FacetDevices:
		return agg.Devices, nil
	case FacetBrowsers:
		return agg.Browsers, nil
	case FacetOperatingSystems:
		return agg.OperatingSystems, nil
	case FacetTrafficSources:
		return agg.TrafficSources, nil
	case FacetTopPages:
		return agg.TopPages, nil
	case FacetContactSubmissions:
		return ContactFacet{ContactSubmissions: agg.ContactSubmissions, CVDownloads: agg.CVDownloads}, nil
	case FacetProjectEngagement:
		return agg.ProjectEngagement, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFacet, facet)
	}
}

func (s *AggregationService) compute(ctx context.Context, q models.AnalyticsQuery) (*models.AnalyticsAggregate, error) {
	window, err := s.periods.Resolve(q.Period, q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}
	previous := window.Previous()

	var (
		current      []models.LogRecord
		previousRecs []models.LogRecord
		contacts     []time.Time
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := s.log.Scan(gctx, window.Start, s.engine.ScanEnd(window))
		if err != nil {
			return fmt.Errorf("failed to scan current window: %w", err)
		}
		current = recs
		return nil
	})
	g.Go(func() error {
		recs, err := s.log.Scan(gctx, previous.Start, previous.End)
		if err != nil {
			return fmt.Errorf("failed to scan previous window: %w", err)
		}
		previousRecs = recs
		return nil
	})
	if s.contacts != nil {
		g.Go(func() error {
			times, err := s.contacts.ContactSubmissions(gctx, window.Start, window.End)
			if err != nil {
				return fmt.Errorf("failed to read contact submissions: %w", err)
			}
			contacts = times
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.engine.Compute(window, current, analytics.CountSessions(previous, previousRecs), contacts), nil
}
