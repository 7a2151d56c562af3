package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"Mansoor88-6/site-analytics/internal/analytics"
	"Mansoor88-6/site-analytics/internal/models"
	"Mansoor88-6/site-analytics/internal/realtime"
	"Mansoor88-6/site-analytics/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// CountryHeader is set by the CDN in front of the site
const CountryHeader = "CF-IPCountry"

type Ingestor interface {
	TrackPageView(ctx context.Context, req models.TrackPageViewRequest, meta models.RequestMeta) (service.IngestResult, error)
	TrackInteraction(ctx context.Context, req models.TrackInteractionRequest, meta models.RequestMeta) (service.IngestResult, error)
}

type AggregateReader interface {
	Comprehensive(ctx context.Context, q models.AnalyticsQuery) (*models.AnalyticsAggregate, error)
	Facet(ctx context.Context, q models.AnalyticsQuery, facet string) (any, error)
}

type LiveFeed interface {
	Snapshot(ctx context.Context) models.LiveSnapshot
	Serve(ctx context.Context, transport realtime.Transport)
}

type AnalyticsHandler struct {
	ingestor       Ingestor
	aggregates     AggregateReader
	live           LiveFeed
	upgrader       *websocket.Upgrader
	requestTimeout time.Duration
	logger         *zap.Logger
}

func NewAnalyticsHandler(
	ingestor Ingestor,
	aggregates AggregateReader,
	live LiveFeed,
	upgrader *websocket.Upgrader,
	requestTimeout time.Duration,
	logger *zap.Logger,
) *AnalyticsHandler {
	return &AnalyticsHandler{
		ingestor:       ingestor,
		aggregates:     aggregates,
		live:           live,
		upgrader:       upgrader,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// TrackPageView handles POST /analytics/track-page-view
func (h *AnalyticsHandler) TrackPageView(c *gin.Context) {
	var req models.TrackPageViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid page view body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.ingestor.TrackPageView(c.Request.Context(), req, requestMeta(c))
	h.respondIngest(c, result, err)
}

// TrackInteraction handles POST /analytics/track-interaction
func (h *AnalyticsHandler) TrackInteraction(c *gin.Context) {
	var req models.TrackInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid interaction body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.ingestor.TrackInteraction(c.Request.Context(), req, requestMeta(c))
	h.respondIngest(c, result, err)
}

func (h *AnalyticsHandler) respondIngest(c *gin.Context, result service.IngestResult, err error) {
	if err != nil {
		if errors.Is(err, service.ErrMissingSessionID) || errors.Is(err, service.ErrMissingPath) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to ingest event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record event"})
		return
	}

	switch result {
	case service.Discarded:
		c.Status(http.StatusNoContent)
	case service.Spooled:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "recorded"})
	}
}

// Comprehensive handles GET /analytics/comprehensive
func (h *AnalyticsHandler) Comprehensive(c *gin.Context) {
	q, ok := h.bindQuery(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	agg, err := h.aggregates.Comprehensive(ctx, q)
	if err != nil {
		h.respondAggregateError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// Facet returns a handler serving one facet of the aggregate
func (h *AnalyticsHandler) Facet(facet string) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := h.bindQuery(c)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
		defer cancel()

		result, err := h.aggregates.Facet(ctx, q, facet)
		if err != nil {
			h.respondAggregateError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// Live handles GET /analytics/live
func (h *AnalyticsHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, h.live.Snapshot(c.Request.Context()))
}

// WebSocket handles GET /analytics/ws and blocks until the client leaves
func (h *AnalyticsHandler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn("Failed to upgrade websocket connection", zap.Error(err))
		return
	}

	h.live.Serve(c.Request.Context(), realtime.NewWebSocketTransport(conn))
}

func (h *AnalyticsHandler) bindQuery(c *gin.Context) (models.AnalyticsQuery, bool) {
	var q models.AnalyticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return q, false
	}
	return q, true
}

func (h *AnalyticsHandler) respondAggregateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, analytics.ErrUnknownPeriod), errors.Is(err, analytics.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnknownFacet):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to compute analytics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
	}
}

func requestMeta(c *gin.Context) models.RequestMeta {
	meta := models.RequestMeta{UserAgent: c.Request.UserAgent()}
	if country := strings.ToUpper(strings.TrimSpace(c.GetHeader(CountryHeader))); country != "" && country != "XX" {
		meta.Location = country
	}
	return meta
}
