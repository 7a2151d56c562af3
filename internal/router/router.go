package router

import (
	"net/http"
	"time"

	"Mansoor88-6/site-analytics/internal/auth"
	"Mansoor88-6/site-analytics/internal/handler"
	"Mansoor88-6/site-analytics/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options wires the router
type Options struct {
	AllowedOrigins []string
	Token          *auth.DashboardToken
	Gatherer       prometheus.Gatherer
}

func New(analyticsHandler *handler.AnalyticsHandler, opts Options, logger *zap.Logger) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), cors.New(corsConfig(opts.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/analytics")
	{
		// Ingestion stays open to every visitor
		api.POST("/track-page-view", analyticsHandler.TrackPageView)
		api.POST("/track-interaction", analyticsHandler.TrackInteraction)

		dashboard := api.Group("/")
		if opts.Token != nil && opts.Token.Enabled() {
			dashboard.Use(opts.Token.Middleware())
		}
		{
			dashboard.GET("/ws", analyticsHandler.WebSocket)
			dashboard.GET("/live", analyticsHandler.Live)
			dashboard.GET("/comprehensive", analyticsHandler.Comprehensive)
			for _, facet := range service.Facets {
				dashboard.GET("/"+facet, analyticsHandler.Facet(facet))
			}
		}
	}

	return r
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization"},
		MaxAge:       time.Hour,
	}

	for _, o := range allowedOrigins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = allowedOrigins
	return cfg
}

// requestLogger logs each request once it has been served
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("HTTP request", fields...)
			return
		}
		logger.Debug("HTTP request", fields...)
	}
}
