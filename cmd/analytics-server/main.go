package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Mansoor88-6/site-analytics/internal/analytics"
	"Mansoor88-6/site-analytics/internal/auth"
	"Mansoor88-6/site-analytics/internal/config"
	"Mansoor88-6/site-analytics/internal/database"
	"Mansoor88-6/site-analytics/internal/handler"
	"Mansoor88-6/site-analytics/internal/logger"
	"Mansoor88-6/site-analytics/internal/metrics"
	"Mansoor88-6/site-analytics/internal/models"
	"Mansoor88-6/site-analytics/internal/queue"
	"Mansoor88-6/site-analytics/internal/realtime"
	"Mansoor88-6/site-analytics/internal/repository"
	"Mansoor88-6/site-analytics/internal/router"
	"Mansoor88-6/site-analytics/internal/server"
	"Mansoor88-6/site-analytics/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting analytics server",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("presence", cfg.Realtime.Presence),
	)

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log.Logger); err != nil {
		log.Fatal("Analytics server failed", zap.Error(err))
	}
	log.Info("Analytics server stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	m := metrics.NewMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := m.Register(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// The relational store holds the site's contact submissions and, with
	// the sqlite driver, the event log itself
	db, err := database.New(cfg.Storage.SQLitePath, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	// Spool for records whose append failed
	var (
		spool    *queue.EventQueue
		replayer *queue.Replayer
	)
	if !cfg.Spool.Disabled {
		spoolDB, err := database.New(cfg.Spool.Path, log)
		if err != nil {
			return fmt.Errorf("failed to initialize spool: %w", err)
		}
		defer func() {
			if err := spoolDB.Close(); err != nil {
				log.Error("Failed to close spool", zap.Error(err))
			}
		}()
		spool = queue.NewEventQueue(spoolDB.DB, log)
	}

	// Event log
	var (
		eventLog  repository.EventLog
		ingestion *service.IngestionService
	)
	switch cfg.Storage.Driver {
	case config.DriverClickHouse:
		ch, err := database.NewClickHouse(cfg.Storage.ClickHouse, log)
		if err != nil {
			return fmt.Errorf("failed to initialize clickhouse: %w", err)
		}
		defer func() {
			if err := ch.Close(); err != nil {
				log.Error("Failed to close clickhouse", zap.Error(err))
			}
		}()

		chLog := repository.NewClickHouseEventLog(
			ch.Conn,
			cfg.Storage.ClickHouse.BatchSize,
			cfg.Storage.ClickHouse.FlushInterval,
			func(records []models.LogRecord) { ingestion.SpoolFailed(records) },
			log,
		)
		defer chLog.Close()
		eventLog = chLog
	default:
		eventLog = repository.NewSQLiteEventLog(db.DB)
	}

	// Real-time channel
	presence, closePresence, err := newPresence(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closePresence()

	periods := analytics.NewPeriodResolver(models.Period(cfg.Analytics.DefaultPeriod), cfg.Location(), nil)
	engine := analytics.NewEngine(
		analytics.Options{
			SessionTimeout:     cfg.Analytics.SessionTimeout,
			TopPagesLimit:      cfg.Analytics.TopPagesLimit,
			ProjectPathPrefix:  cfg.Analytics.ProjectPathPrefix,
			CVDownloadElements: cfg.Analytics.CVDownloadElements,
			Location:           cfg.Location(),
		},
		analytics.NewAgentParser(cfg.Analytics.UACacheSize),
		analytics.NewSourceClassifier(cfg.Analytics.SiteHosts, cfg.Analytics.SearchEngines, cfg.Analytics.SocialNetworks),
	)
	aggregation := service.NewAggregationService(
		eventLog,
		repository.NewSQLiteContactSource(db.DB),
		engine,
		periods,
		m,
		log,
	)

	hub := realtime.NewHub(
		realtime.HubConfig{
			ActivityBuffer:   cfg.Realtime.ActivityBuffer,
			SubscriberBuffer: cfg.Realtime.SubscriberBuffer,
			PruneInterval:    cfg.Realtime.PruneInterval,
			RequestTimeout:   cfg.Analytics.RequestTimeout,
		},
		presence,
		aggregation,
		m,
		log,
	)
	hub.Start()
	defer hub.Stop()

	// A nil *EventQueue must not become a non-nil Spool
	var ingestSpool service.Spool
	if spool != nil {
		ingestSpool = spool
	}
	ingestion = service.NewIngestionService(eventLog, ingestSpool, hub, m, log, nil)

	if spool != nil {
		replayer = queue.NewReplayer(spool, eventLog, cfg.Spool.RetryInterval, cfg.Spool.MaxAge, log)
		replayer.Start()
		defer replayer.Stop()
	}

	// HTTP
	analyticsHandler := handler.NewAnalyticsHandler(
		ingestion,
		aggregation,
		hub,
		realtime.NewUpgrader(cfg.HTTP.AllowedOrigins),
		cfg.Analytics.RequestTimeout,
		log,
	)
	token := auth.NewDashboardToken(cfg.Dashboard.Token, log)
	if !token.Enabled() {
		log.Warn("Dashboard token not set, read endpoints are open")
	}
	httpHandler := router.New(analyticsHandler, router.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Token:          token,
		Gatherer:       registry,
	}, log)
	srv := server.New(cfg.HTTP, httpHandler, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down analytics server")
		return nil
	})

	return g.Wait()
}

func newPresence(ctx context.Context, cfg *config.Config, log *zap.Logger) (realtime.Presence, func(), error) {
	switch cfg.Realtime.Presence {
	case config.PresenceRedis:
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		client, err := realtime.NewRedisClient(connectCtx, cfg.Realtime.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("Using redis presence", zap.String("key", cfg.Realtime.RedisKey))
		closeFn := func() {
			if err := client.Close(); err != nil {
				log.Error("Failed to close redis client", zap.Error(err))
			}
		}
		return realtime.NewRedisPresence(client, cfg.Realtime.RedisKey, cfg.Realtime.LiveWindow, nil), closeFn, nil
	default:
		return realtime.NewMemoryPresence(cfg.Realtime.LiveWindow, nil, log), func() {}, nil
	}
}
