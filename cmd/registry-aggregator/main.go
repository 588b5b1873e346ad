package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/cratehub/registry/pkg/async"
	"github.com/cratehub/registry/pkg/config"
	"github.com/cratehub/registry/pkg/downloads"
	"github.com/cratehub/registry/pkg/observability"
	"github.com/cratehub/registry/pkg/storage/postgres"
)

var (
	daemon        = flag.Bool("daemon", false, "Run continuously, sleeping between runs")
	sleepInterval = flag.Int("sleep-interval", 0, "Seconds to sleep between daemon runs (overrides config)")
	schedule      = flag.String("schedule", "", "Cron expression replacing the fixed interval in daemon mode")
	migrate       = flag.Bool("migrate", false, "Apply pending schema migrations before running")
)

func main() {
	flag.Parse()

	// .env is optional, for local development.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags take precedence over environment/file configuration.
	if *daemon {
		cfg.Aggregator.Mode = config.ModeDaemon
	}
	if *sleepInterval > 0 {
		cfg.Aggregator.SleepInterval = time.Duration(*sleepInterval) * time.Second
	}
	if *schedule != "" {
		cfg.Aggregator.Schedule = *schedule
	}
	if *migrate {
		cfg.Aggregator.MigrateOnStart = true
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Aggregator.MigrateOnStart {
		if err := downloads.RunMigrations(ctx, db, logger); err != nil {
			logger.WithError(err).Error("Failed to apply migrations")
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	var publisher *downloads.Publisher
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		publisher = downloads.NewPublisher(redisClient, cfg.Redis.TTL)
	}

	promRegistry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(promRegistry)
	}

	engine := downloads.NewEngine(downloads.NewSQLStore(db), downloads.Config{
		PageSize:     cfg.Aggregator.PageSize,
		FreezeWindow: cfg.Aggregator.FreezeWindow,
		Logger:       logger,
		Metrics:      metrics,
	})

	// One-shot mode: drain the backlog once and exit.
	if cfg.Aggregator.Mode == config.ModeOneShot {
		stats, runErr := engine.Run(ctx)
		if runErr == nil && publisher != nil {
			publishRun(ctx, db, publisher, stats, logger)
		}
		// The exporters batch; flush them before the process exits so the
		// run's spans and metrics are not dropped.
		flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := observability.ShutdownOTel(flushCtx, otelProviders, logger); err != nil {
			logger.WithError(err).Warn("Failed to flush telemetry")
		}
		if runErr != nil {
			logger.WithError(runErr).Error("Aggregation run failed")
			os.Exit(1)
		}
		return
	}

	// Daemon mode: health/metrics endpoint plus a scheduled loop.
	router := mux.NewRouter()
	checker := observability.NewHealthChecker(db, redisClient)
	observability.RegisterHealthRoutes(router, checker)
	if metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	server := &http.Server{
		Addr:    ":" + cfg.Observability.HealthPort,
		Handler: router,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, 30*time.Second)

	onRunComplete := func(runCtx context.Context, stats downloads.RunStats) {
		if metrics != nil {
			metrics.UpdateDBStats(db)
		}
		if publisher == nil {
			return
		}
		async.SafeGo(runCtx, 5*time.Second, "counter cache publish", func(ctx context.Context) error {
			total, err := downloads.TotalDownloads(ctx, db)
			if err != nil {
				return err
			}
			if err := publisher.PublishTotal(ctx, total); err != nil {
				return err
			}
			return publisher.PublishRun(ctx, stats)
		})
	}

	if cfg.Aggregator.Schedule != "" {
		c := newCron(logger)
		if _, err := c.AddFunc(cfg.Aggregator.Schedule, func() {
			runCtx := context.Background()
			stats, err := engine.Run(runCtx)
			if err != nil {
				logger.WithError(err).Error("Aggregation run failed")
				return
			}
			onRunComplete(runCtx, stats)
		}); err != nil {
			logger.WithError(err).Errorf("Invalid cron schedule %q", cfg.Aggregator.Schedule)
			os.Exit(1)
		}
		c.Start()
		logger.Infof("Aggregator started with schedule %q", cfg.Aggregator.Schedule)
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			stopped := c.Stop()
			select {
			case <-stopped.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	} else {
		runner := downloads.NewRunner(engine, cfg.Aggregator.SleepInterval, logger)
		runner.OnRunComplete(onRunComplete)
		runner.Start(ctx)
		logger.Infof("Aggregator started with interval %s", cfg.Aggregator.SleepInterval)
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			runner.Stop()
			return nil
		})
	}

	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown failed")
		os.Exit(1)
	}
}

// newCron builds the schedule driver. There is one logical aggregator per
// process, so a tick that fires while the previous run is still draining is
// skipped rather than run concurrently.
func newCron(logger *observability.Logger) *cron.Cron {
	return cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	log *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(cronFields(keysAndValues)).Info(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(cronFields(keysAndValues)).Error(msg)
}

func cronFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

// publishRun pushes the completed run's totals to the counter cache
// synchronously, for one-shot mode where the process exits right after.
func publishRun(ctx context.Context, db *sql.DB, publisher *downloads.Publisher, stats downloads.RunStats, logger *observability.Logger) {
	total, err := downloads.TotalDownloads(ctx, db)
	if err != nil {
		logger.WithError(err).Warn("Failed to read total downloads for publishing")
		return
	}
	if err := publisher.PublishTotal(ctx, total); err != nil {
		logger.WithError(err).Warn("Failed to publish total downloads")
	}
	if err := publisher.PublishRun(ctx, stats); err != nil {
		logger.WithError(err).Warn("Failed to publish run stats")
	}
}
