package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/supplierportal/notify-api/config"
	"github.com/supplierportal/notify-api/internal/app"
	"github.com/supplierportal/notify-api/internal/handler/health"
	promhandler "github.com/supplierportal/notify-api/internal/handler/prometheus"
	"github.com/supplierportal/notify-api/internal/middleware"
	"github.com/supplierportal/notify-api/internal/worker"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/messaging"
	pkgworker "github.com/supplierportal/notify-api/pkg/worker"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	flags := pflag.NewFlagSet("worker", pflag.ExitOnError)
	analyticsDate := flags.String("analytics-date", "", "generate analytics for one day (YYYY-MM-DD) and exit")
	analyticsDays := flags.Int("analytics-days", 7, "generate analytics for the last N days and exit")
	seedServices := flags.Bool("seed-services", false, "create the default service registry rows and exit")
	consumers := flags.Bool("consumers", true, "consume heartbeats and business events from Redis")
	workerID := flags.String("worker-id", "", "identifier reported in heartbeats and queue claims")
	_ = flags.Parse(os.Args[1:])

	// Load config
	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := app.NewLogger(cfg.Logging, "notify-worker")
	log.Logger = *appLogger.Zerolog()

	if *workerID == "" {
		*workerID = generateWorkerID()
	}
	appLogger = appLogger.WithFields(map[string]interface{}{"worker_id": *workerID})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler := promhandler.New("notify")
	m := metricsHandler.Metrics()

	infra, err := app.Connect(ctx, cfg, appLogger, m)
	if err != nil {
		appLogger.Fatal(err, "Failed to connect")
	}
	defer infra.Close()
	if err := metricsHandler.RegisterDB(infra.DB.DB, cfg.Database.Name); err != nil {
		appLogger.Warn("Failed to register database stats", "error", err.Error())
	}

	a, err := app.New(ctx, cfg, infra.DB, appLogger, m)
	if err != nil {
		appLogger.Fatal(err, "Failed to initialize services")
	}

	// One-shot commands
	switch {
	case *seedServices:
		n, err := a.Registry.Seed(ctx)
		if err != nil {
			appLogger.Fatal(err, "Failed to seed services")
		}
		appLogger.Info("Seeded service registry", "created", n)
		return
	case *analyticsDate != "":
		day, err := time.Parse("2006-01-02", *analyticsDate)
		if err != nil {
			appLogger.Fatal(err, "Invalid --analytics-date, expected YYYY-MM-DD")
		}
		rows, err := a.Analytics.GenerateDaily(ctx, day)
		if err != nil {
			appLogger.Fatal(err, "Failed to generate analytics")
		}
		appLogger.Info("Generated analytics", "date", *analyticsDate, "rows", len(rows))
		return
	case flags.Changed("analytics-days"):
		rows, err := a.Analytics.GenerateRange(ctx, time.Now(), *analyticsDays)
		if err != nil {
			appLogger.Fatal(err, "Failed to generate analytics")
		}
		appLogger.Info("Generated analytics", "days", *analyticsDays, "rows", rows)
		return
	}

	if cfg.TemplateAutoCreate() {
		if _, err := a.Templates.SeedDefaults(ctx); err != nil {
			appLogger.Error(err, "Failed to seed default templates")
		}
	}

	stats := &worker.Stats{}
	locker := pkgworker.NewRedisLocker(infra.Redis)
	jobs := cfg.Jobs

	dispatcher := worker.NewDispatcher(a.Queue, a.Notifications, a.Registry, worker.DispatcherConfig{
		WorkerID:  *workerID,
		BatchSize: jobs.BatchSize,
	}, stats, appLogger)
	heartbeater := worker.NewHeartbeater(a.Registry, infra.Broker, cfg.Registry.HeartbeatChannel,
		[]string{worker.ServiceQueue, worker.ServiceEmail, worker.ServiceSMS}, *workerID, version, stats, appLogger)
	cleanup := worker.NewCleanupWorker(a.Notifications, jobs.RetentionDays, appLogger)

	// Dispatch and heartbeats run on every replica; claims are row-locked.
	runners := []*pkgworker.Runner{
		pkgworker.NewRunner(pkgworker.RunnerConfig{Name: "dispatch", Interval: jobs.DispatchInterval}, dispatcher.Run, nil, appLogger, m),
		pkgworker.NewRunner(pkgworker.RunnerConfig{Name: "heartbeat", Interval: jobs.HeartbeatInterval}, heartbeater.Run, nil, appLogger, m),
		pkgworker.NewRunner(jobs.RunnerConfig("queue_maintenance", jobs.RetryInterval), worker.QueueMaintenanceJob(a.Queue, jobs.BatchSize, appLogger), locker, appLogger, m),
		pkgworker.NewRunner(jobs.RunnerConfig("campaigns", jobs.CampaignInterval), worker.CampaignJob(a.Campaigns), locker, appLogger, m),
		pkgworker.NewRunner(jobs.RunnerConfig("analytics", jobs.AnalyticsInterval), worker.AnalyticsJob(a.Analytics), locker, appLogger, m),
		pkgworker.NewRunner(jobs.RunnerConfig("cleanup", jobs.PurgeInterval), cleanup.Run, locker, appLogger, m),
		pkgworker.NewRunner(jobs.RunnerConfig("registry_sweep", jobs.HeartbeatInterval), worker.RegistrySweepJob(a.Registry), locker, appLogger, m),
	}

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *pkgworker.Runner) {
			defer wg.Done()
			r.Start(ctx)
		}(r)
	}

	if *consumers {
		consume := func(channel string, handle messaging.HandlerFunc) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				appLogger.Info("Consuming channel", "channel", channel)
				err := messaging.Consume(ctx, infra.Broker, channel, handle, func(err error) {
					appLogger.Error(err, "Failed to handle message")
				})
				if err != nil {
					appLogger.Error(err, "Consumer stopped", "channel", channel)
				}
			}()
		}
		consume(cfg.Registry.HeartbeatChannel, worker.HeartbeatHandler(a.Registry, appLogger))
		consume(cfg.Registry.EventsChannel, worker.EventHandler(a.Notifier, appLogger))
	}

	srv := setupHealthCheck(cfg.Server.HealthPort, infra, metricsHandler, appLogger)

	<-ctx.Done()
	appLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "Health server forced to shutdown")
	}
	wg.Wait()
	appLogger.Info("Worker stopped")
}

func setupHealthCheck(port int, infra *app.Infra, metricsHandler *promhandler.Handler, appLogger *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.GET("/metrics", metricsHandler.Handler())
	health.NewHandler(map[string]health.Pinger{
		"database": infra.DB,
		"redis":    health.PingFunc(infra.Broker.Ping),
	}).RegisterRoutes(&engine.RouterGroup)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func generateWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}
