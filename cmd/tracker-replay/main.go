package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Mansoor88-6/site-analytics/internal/client"
	"Mansoor88-6/site-analytics/internal/logger"
	"Mansoor88-6/site-analytics/internal/replay"
	"Mansoor88-6/site-analytics/internal/tracker"

	"go.uber.org/zap"
)

func main() {
	scenarioPath := flag.String("scenario", "config/replay.yaml", "Path to scenario file")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log, err := logger.New(*logLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	scenario, err := replay.LoadScenario(*scenarioPath)
	if err != nil {
		log.Fatal("Failed to load scenario", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := client.NewAPIClient(scenario.Server, scenario.Timeout, log.Logger)
	if err := health.HealthCheck(ctx); err != nil {
		log.Fatal("Server is not reachable", zap.String("server", scenario.Server), zap.Error(err))
	}

	runner := replay.NewRunner(scenario, func(userAgent string) tracker.Sender {
		c := client.NewAPIClient(scenario.Server, scenario.Timeout, log.Logger)
		c.SetUserAgent(userAgent)
		return c
	}, log.Logger)

	log.Info("Replaying scenario",
		zap.String("scenario", *scenarioPath),
		zap.String("server", scenario.Server),
		zap.Int("tabs", len(scenario.Tabs)),
	)
	if err := runner.Run(ctx); err != nil {
		log.Fatal("Replay failed", zap.Error(err))
	}
	log.Info("Replay finished")
}
