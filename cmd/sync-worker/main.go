package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/brightpaw/vetdesk-ai-platform/cmd/mainconfig"
	"github.com/brightpaw/vetdesk-ai-platform/internal/app/bootstrap"
	appconfig "github.com/brightpaw/vetdesk-ai-platform/internal/config"
	"github.com/brightpaw/vetdesk-ai-platform/internal/pms"
	"github.com/brightpaw/vetdesk-ai-platform/internal/pmssync"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting PMS sync worker", "env", cfg.Env)

	ctx := context.Background()

	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	clinicStore := bootstrap.BuildClinicStore(pool, redisClient, logger)
	queue := pmssync.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.PMSSyncQueueURL)
	pmsClient := pms.NewHTTPClient(cfg.PMSBaseURL, logger,
		pms.WithTimeout(cfg.PMSHTTPTimeout),
		pms.WithDryRun(cfg.PMSDryRun),
	)

	worker := pmssync.NewWorker(queue, pmsClient, clinicStore, logger,
		pmssync.WithWorkerCount(cfg.SyncWorkerCount),
	)
	worker.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down PMS sync worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := worker.Shutdown(shutdownCtx); err != nil {
		logger.Error("sync worker shutdown timed out", "error", err)
		os.Exit(1)
	}

	logger.Info("sync worker stopped")
}
