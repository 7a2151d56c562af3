package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Mansoor88-6/site-analytics/internal/client"
	"Mansoor88-6/site-analytics/internal/dashboard"
	"Mansoor88-6/site-analytics/internal/logger"
	"Mansoor88-6/site-analytics/internal/models"

	"go.uber.org/zap"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Analytics server root")
	token := flag.String("token", os.Getenv("DASHBOARD_TOKEN"), "Dashboard token")
	period := flag.String("period", "last_7_days", "Aggregate period")
	pollInterval := flag.Duration("poll-interval", 30*time.Second, "REST polling interval while disconnected")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log, err := logger.New(*logLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	api := client.NewAPIClient(*server, 10*time.Second, log.Logger)
	api.SetDashboardToken(*token)

	cfg := dashboard.DefaultConfig(*server)
	cfg.Token = *token
	cfg.Query = models.AnalyticsQuery{Period: *period}
	cfg.PollInterval = *pollInterval

	dash, err := dashboard.NewClient(cfg, api, func(s dashboard.State) {
		fields := []zap.Field{
			zap.Bool("connected", s.Connected),
			zap.Int("live_visitors", s.LiveCount),
			zap.Int("recent", len(s.Recent)),
		}
		if s.Aggregate != nil {
			fields = append(fields,
				zap.Int64("visitors", s.Aggregate.Overview.TotalVisitors),
				zap.Int64("page_views", s.Aggregate.Overview.TotalPageViews),
				zap.Float64("bounce_rate", s.Aggregate.Overview.BounceRate),
			)
		}
		if len(s.Recent) > 0 {
			fields = append(fields, zap.String("latest", string(s.Recent[0].Type)+" "+s.Recent[0].Page))
		}
		if s.LastError != "" {
			fields = append(fields, zap.String("error", s.LastError))
		}
		log.Info("Dashboard updated", fields...)
	}, log.Logger)
	if err != nil {
		log.Fatal("Invalid dashboard configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dash.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Dashboard stopped", zap.Error(err))
	}
}
