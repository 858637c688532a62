package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riskibarqy/footybot-roster/internal/app"
	"github.com/riskibarqy/footybot-roster/internal/config"
	"github.com/riskibarqy/footybot-roster/internal/observability"
	"github.com/riskibarqy/footybot-roster/internal/platform/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	logger := logging.NewJSON(cfg.LogLevel).With(
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"env", cfg.AppEnv,
	)
	logging.SetDefault(logger)
	defer func() {
		_ = logger.Sync()
	}()

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		return 1
	}
	stopProfiling, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		return 1
	}
	defer func() {
		if err := stopProfiling(); err != nil {
			logger.Warn("stop pyroscope", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("shutdown uptrace", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job, err := app.NewRosterJob(ctx, cfg, logger)
	if err != nil {
		logger.Error("build roster job", "error", err)
		return 1
	}
	defer func() {
		if err := job.Close(); err != nil {
			logger.Warn("close roster job", "error", err)
		}
	}()

	result, runErr := job.Service.Run(ctx)

	pushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := job.Metrics.Push(pushCtx); err != nil {
		logger.Warn("push run metrics failed", "error", err)
	}

	if runErr != nil {
		logger.Error("roster run failed",
			"run_id", result.RunID,
			"teams_success", result.SuccessCount,
			"teams_failed", result.FailedCount,
			"error", runErr,
		)
		return 1
	}
	if result.Partial() {
		logger.Warn("roster written with missing teams",
			"run_id", result.RunID,
			"teams_skipped", result.SkippedCount,
			"teams_failed", result.FailedCount,
		)
	}
	return 0
}
