package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightpaw/vetdesk-ai-platform/cmd/mainconfig"
	"github.com/brightpaw/vetdesk-ai-platform/internal/api/router"
	"github.com/brightpaw/vetdesk-ai-platform/internal/app/bootstrap"
	"github.com/brightpaw/vetdesk-ai-platform/internal/appointments"
	"github.com/brightpaw/vetdesk-ai-platform/internal/audit"
	"github.com/brightpaw/vetdesk-ai-platform/internal/availability"
	"github.com/brightpaw/vetdesk-ai-platform/internal/booking"
	"github.com/brightpaw/vetdesk-ai-platform/internal/calls"
	"github.com/brightpaw/vetdesk-ai-platform/internal/cancellation"
	"github.com/brightpaw/vetdesk-ai-platform/internal/clinic"
	appconfig "github.com/brightpaw/vetdesk-ai-platform/internal/config"
	"github.com/brightpaw/vetdesk-ai-platform/internal/http/handlers"
	"github.com/brightpaw/vetdesk-ai-platform/internal/notify"
	"github.com/brightpaw/vetdesk-ai-platform/internal/observability/metrics"
	"github.com/brightpaw/vetdesk-ai-platform/internal/pms"
	"github.com/brightpaw/vetdesk-ai-platform/internal/pmssync"
	"github.com/brightpaw/vetdesk-ai-platform/internal/reschedule"
	"github.com/brightpaw/vetdesk-ai-platform/internal/scheduling"
	"github.com/brightpaw/vetdesk-ai-platform/internal/tools"
	"github.com/brightpaw/vetdesk-ai-platform/internal/verification"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting vetdesk-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Postgres: pgx pool for the domain stores, database/sql for audit.
	pool, err := bootstrap.BuildPgxPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB, err := bootstrap.BuildSQLDB(cfg)
	if err != nil {
		logger.Error("failed to open sql db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Stores
	clinicStore := bootstrap.BuildClinicStore(pool, redisClient, logger)
	scheduleStore := scheduling.NewStore(pool)
	apptRepo := appointments.NewRepository(pool)
	callStore := calls.NewStore(pool)
	auditService := audit.NewService(sqlDB)

	// PMS client and fire-and-forget sync publisher
	toolMetrics := metrics.NewToolMetrics(nil)
	pmsClient := pms.NewHTTPClient(cfg.PMSBaseURL, logger,
		pms.WithTimeout(cfg.PMSHTTPTimeout),
		pms.WithDryRun(cfg.PMSDryRun),
	)
	syncQueue := pmssync.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.PMSSyncQueueURL)
	syncPublisher := pmssync.NewPublisher(syncQueue, logger, toolMetrics)

	// Staff notification email
	emailSender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
		FromEmail: cfg.NotifyFromEmail,
		FromName:  cfg.NotifyFromName,
	}, logger)

	// Booking strategies: realtime PMS falls back to the store-managed
	// schedule when the vendor API is down.
	storeManaged := booking.NewStoreManaged(scheduleStore, logger)
	registry := booking.Registry{
		clinic.IntegrationRealtimePMS:  booking.NewRealtimePMS(pmsClient, callStore, storeManaged, logger),
		clinic.IntegrationNoAPI:        booking.NewManualEntry(callStore, emailSender, logger),
		clinic.IntegrationStoreManaged: storeManaged,
	}

	// Domain services
	availabilityService := availability.NewService(scheduleStore, logger)
	resolver := verification.NewResolver(apptRepo, logger)
	booker := booking.NewTransactor(registry, auditService, logger)
	canceller := cancellation.NewTransactor(resolver, apptRepo, auditService, syncPublisher, callStore, logger)
	rescheduler := reschedule.NewTransactor(resolver, scheduleStore, apptRepo, auditService, syncPublisher, callStore, toolMetrics, logger)

	engine := tools.NewEngine(tools.EngineConfig{
		Availability: availabilityService,
		Booker:       booker,
		Verifier:     resolver,
		Canceller:    canceller,
		Rescheduler:  rescheduler,
		Metrics:      toolMetrics,
		Logger:       logger,
	})
	voiceTools := handlers.NewVoiceToolsHandler(clinicStore, engine, logger)

	// Setup router
	r := router.New(&router.Config{
		Logger:         logger,
		VoiceTools:     voiceTools,
		MetricsHandler: promhttp.Handler(),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
