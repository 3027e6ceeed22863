package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/logging"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/middleware"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/monitoring"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/server"
	"github.com/Vikasalagarsamy/OOAK-AI/pkg/version"

	"github.com/Vikasalagarsamy/OOAK-AI/pkg/clients"
	crmclient "github.com/Vikasalagarsamy/OOAK-AI/pkg/clients/crm"

	"github.com/Vikasalagarsamy/OOAK-AI/internal/config"
	"github.com/Vikasalagarsamy/OOAK-AI/internal/handlers"
	"github.com/Vikasalagarsamy/OOAK-AI/internal/pipeline"
	"github.com/Vikasalagarsamy/OOAK-AI/internal/recording"
	"github.com/Vikasalagarsamy/OOAK-AI/internal/storage"
	"github.com/Vikasalagarsamy/OOAK-AI/internal/telephony"
	"github.com/Vikasalagarsamy/OOAK-AI/internal/tracker"
)

func main() {
	// Setup structured logger
	logger := logging.NewLoggerWithService("callwatch")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	logger.Info("Starting OOAK CallWatch (Call Recording Agent)")

	cfg, err := config.LoadAgentConfig()
	if err != nil {
		logger.WithError(err).Fatal("Configuration load failed")
	}

	hardware := config.DetectHardware(cfg.StorageRoots)
	logger.WithFields(logging.Fields{
		"cpu_cores":     hardware.CPUCores,
		"memory_gb":     hardware.MemoryGB,
		"disk_gb":       hardware.DiskGB,
		"device_id":     cfg.DeviceID,
		"employee_id":   cfg.EmployeeID,
		"storage_roots": cfg.StorageRoots,
	}).Info("Agent environment detected")

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("callwatch", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("callwatch", version.Version, version.GitCommit)

	healthChecker.AddCheck("crm", monitoring.HTTPServiceHealthCheck("CRM", cfg.CRMBaseURL+"/api/health"))
	healthChecker.AddCheck("storage", monitoring.StorageRootsHealthCheck(cfg.StorageRoots))
	healthChecker.AddCheck("disk", storage.LowSpaceHealthCheck(cfg.StorageRoots, 256*1024*1024))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"CRM_BASE_URL": cfg.CRMBaseURL,
		"EMPLOYEE_ID":  cfg.EmployeeID,
		"DEVICE_ID":    cfg.DeviceID,
	}))

	crmBreaker := clients.DefaultCircuitBreakerConfig()
	crmBreaker.Name = "crm"
	crmBreaker.Logger = logger
	crmBreaker.OnStateChange = clients.CircuitBreakerMetricsCallback("crm")

	crm := crmclient.NewClient(crmclient.Config{
		BaseURL:              cfg.CRMBaseURL,
		EmployeeID:           cfg.EmployeeID,
		Timeout:              cfg.UploadTimeout,
		Logger:               logger,
		CircuitBreakerConfig: &crmBreaker,
	})

	pipelineMetrics := pipeline.NewMetrics(metricsCollector)

	callTracker := tracker.New(logger, tracker.Thresholds{
		Instant:   cfg.InstantThreshold,
		Short:     cfg.ShortThreshold,
		Voicemail: cfg.VoicemailThreshold,
	})
	scanner := recording.NewScanner(cfg.StorageRoots, cfg.AudioExtensions, cfg.MatchWindow, logger)
	matcher := recording.NewMatcher(cfg.MinCandidateSize, recording.NewByteRateEstimator(), logger)
	scheduler := pipeline.NewScheduler(pipeline.SchedulerConfig{
		Delays:        cfg.RetryDelays,
		SweepInterval: cfg.SweepInterval,
		SweepMaxAge:   cfg.SweepMaxAge,
		Expiry:        cfg.SessionExpiry,
	}, pipeline.SchedulerHooks{}, logger)
	uploader := pipeline.NewUploader(crm, pipeline.UploaderConfig{
		DeviceID:   cfg.DeviceID,
		EmployeeID: cfg.EmployeeID,
		Timeout:    cfg.UploadTimeout,
	}, logger)

	engine := pipeline.NewEngine(callTracker, scanner, matcher, scheduler, uploader, crm, pipeline.EngineConfig{
		DeviceID:   cfg.DeviceID,
		EmployeeID: cfg.EmployeeID,
		StatusPush: cfg.StatusPushOn,
	}, pipelineMetrics, logger)
	engine.Start()

	normalizer := telephony.NewNormalizer(engine, nil, nil, nil, telephony.Config{
		CallLogWindow: cfg.CallLogWindow,
	}, logger)

	// Live filesystem watch shortcuts the backoff chain when a recording
	// lands while its call is still pending.
	var watcher *recording.Watcher
	if cfg.WatchRoots {
		watcher, err = recording.NewWatcher(cfg.StorageRoots, cfg.AudioExtensions, engine.OnRecordingFile, logger)
		if err != nil {
			logger.WithError(err).Warn("Storage watch unavailable, relying on scheduled scans")
		}
	}

	rescanRequests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "callwatch_rescan_requests_total",
		Help: "Manual rescan requests",
	})
	metricsCollector.RegisterCustomMetric("callwatch_rescan_requests_total", rescanRequests)

	handlerMetrics := &handlers.HandlerMetrics{
		SignalsReceived: metricsCollector.NewCounter("callwatch_signals_received_total", "Telephony signals received", []string{"kind"}),
		SignalsRejected: metricsCollector.NewCounter("callwatch_signals_rejected_total", "Telephony signals rejected", []string{"reason"}),
		RescanRequests:  rescanRequests,
	}
	handlers.Init(logger, handlerMetrics, normalizer, engine)

	// Setup router with unified monitoring
	r := server.SetupServiceRouter(logger, "callwatch", healthChecker, metricsCollector)

	api := r.Group("/")
	if cfg.APIToken != "" {
		api.Use(middleware.ServiceAuthMiddleware(cfg.APIToken))
	}
	signals := api.Group("/signals")
	{
		signals.POST("/state", handlers.HandleStateSignal)
		signals.POST("/originated", handlers.HandleOriginatedSignal)
	}
	api.POST("/rescan", handlers.HandleRescan)
	api.GET("/sessions", handlers.HandleSessions)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")

		if watcher != nil {
			watcher.Stop()
		}
		engine.Stop()

		logger.Info("Shutting down CallWatch gracefully...")
		os.Exit(0)
	}()

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("callwatch", cfg.Port)
	if err := server.Start(serverConfig, r, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
