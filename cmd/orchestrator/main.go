package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/client"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/config"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/health"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/metrics"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/model"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/service"
	"github.com/ktngoykalolo/WingtipTicketsSaaS-DbPerTenant/internal/store"
)

func main() {
	directionFlag := flag.String("direction", "", "migration direction: failover or failback")
	configFlag := flag.String("config", "", "path to config file (default ./config.yaml or CONFIG_PATH)")
	flag.Parse()

	direction, err := model.ParseDirection(*directionFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting tenant migration orchestrator",
		zap.String("direction", string(direction)),
		zap.String("origin_region", cfg.Regions.Origin),
		zap.String("recovery_region", cfg.Regions.Recovery),
		zap.Int("max_concurrent_operations", cfg.Scheduler.MaxConcurrentOperations))

	// Initialize metrics
	m := metrics.NewMetrics()

	// Initialize tenant catalog (PostgreSQL). Unreachable catalog is a
	// global precondition failure: abort before issuing any operation.
	catalog, err := store.NewPostgresCatalog(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize tenant catalog", zap.Error(err))
	}
	defer catalog.Close()
	logger.Info("Tenant catalog initialized")

	// The replication client shares the catalog's connection pool
	pgCatalog, ok := catalog.(*store.PostgresCatalog)
	if !ok {
		logger.Fatal("Failed to cast catalog to PostgresCatalog")
	}
	replication := client.NewSQLReplicationClient(pgCatalog.GetPool(), cfg.Scheduler.ProbeTimeout, logger)
	defer replication.Close()
	logger.Info("Replication client initialized")

	// Initialize services
	recovery := service.NewRecoveryService(catalog, m, logger)
	classifier := service.NewClassifierService(catalog, replication, m, logger)
	reporter := service.MultiReporter{
		service.NewLogReporter(logger),
		service.NewMetricsReporter(m),
	}
	scheduler := service.NewSchedulerService(
		catalog,
		replication,
		recovery,
		reporter,
		m,
		cfg.Scheduler.MaxConcurrentOperations,
		cfg.Scheduler.PollInterval,
		cfg.Scheduler.OperationTimeout,
		logger,
	)

	// Start metrics server
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Start health check server
	healthChecker := health.NewHealthChecker(catalog, replication, logger)
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health/live", healthChecker.LivenessHandler)
		mux.HandleFunc("/health/ready", healthChecker.ReadinessHandler)
		addr := ":8080"
		logger.Info("Starting health check server", zap.String("address", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Health check server failed", zap.Error(err))
		}
	}()

	// Cancel the run on interrupt; the scheduler's bookkeeping is
	// reconstructible from the catalog, so stopping mid-batch is safe
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, cancelling run", zap.String("signal", sig.String()))
		cancel()
	}()

	classification, err := classifier.Classify(ctx, direction)
	if err != nil {
		logger.Fatal("Classification failed", zap.Error(err))
	}

	result, err := scheduler.Run(ctx, classification)
	if err != nil {
		logger.Error("Migration run did not finish",
			zap.Int("completed", result.Completed),
			zap.Int("faulted", result.Faulted),
			zap.Int("total", result.Total),
			zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Migration run finished",
		zap.String("direction", string(direction)),
		zap.Int("completed", result.Completed),
		zap.Int("faulted", result.Faulted),
		zap.Int("deferred", classification.Deferred),
		zap.Int("total", result.Total))

	if result.Faulted > 0 {
		os.Exit(1)
	}
}

// buildLogger constructs a zap logger from the logging config
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return zapCfg.Build()
}
